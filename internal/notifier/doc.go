// Package notifier delivers stock alerts, reports and reorder suggestions.
//
// A Channel is one delivery mechanism. Messaging channels push short chat
// messages (WhatsApp through the Twilio REST API, or Telegram); the email
// channel sends plain-text mail over SMTP and attaches an inventory CSV to
// reports.
//
// # Construction
//
// Build turns a Config into the set of enabled channels. A Provider holds the
// current set behind a lock so callers can swap it after a settings change
// without restarting whoever reads it.
//
// # Failure contract
//
// Every send returns an error instead of panicking or retrying. Callers treat
// any error as recoverable; failures are wrapped in *DeliveryError so the
// channel and operation can be recovered with errors.As.
package notifier
