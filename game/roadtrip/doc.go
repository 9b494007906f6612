// Package roadtrip is a multiplayer battery-management race hosted by the
// lobby package.
//
// Every member of an active room drives one car on a shared grid track. A
// move costs one unit of battery; homes and superchargers refill it; the
// first car to visit every park wins. A car whose battery reaches zero off a
// charger is stranded until a tow truck recharges it after a delay.
//
// Rules plug the race into a lobby.Manager:
//
//	rules := roadtrip.NewRules(tracks, "classic", 5*time.Second, log)
//	opts := lobby.Options{}
//	rules.Apply(&opts)
//	manager, err := lobby.NewManager(hub, opts)
//
// Actions: move {"direction":"up|down|left|right"}, state, honk.
// Pushed events: race-update, race-finished, honk, towed.
package roadtrip
