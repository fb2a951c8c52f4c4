// Package monitor runs the background stock watcher.
//
// A Loop polls the store on a fixed interval, classifies every product as
// none, low or out of stock, and sends an alert through each notification
// channel when a product moves into a more severe condition or stays severe
// past the re-alert cooldown. Outcomes are appended to the store's activity
// log: "alert" when at least one channel delivered, "error" per failing
// channel.
//
// # Lifecycle
//
//	Stopped -> Running -> Paused -> Running -> Stopped
//
// Start seeds the per-product alert memory from current quantities, so a
// product that is already low when the process starts is not re-announced on
// the first tick. Pause keeps that memory; a fresh Start clears it.
//
// # Concurrency
//
// The store lock is only held inside Products and Append. Channel calls run
// after the read pass, each bounded by DispatchTimeout and by the loop
// context, so Stop can cancel a hung send and return within StopGrace.
package monitor
