// Package lobby orchestrates parties and rooms on top of a connection
// multiplexing transport.
//
// A party is created for every connection. Parties create rooms, which are
// joined by a short code and move from lobby to active when their host starts
// a game, and are destroyed when emptied. Once a room is active the manager
// forwards custom actions to the hosted Game and hands it a Pusher for
// unsolicited messages.
//
// Every request is answered with "<event>_response" or "<event>_error". Error
// envelopes carry a transmissible Code from this package, or the code a game
// handler returned.
//
// Pushes never take the manager lock, so a Game may push at any time,
// including from inside its own handlers and timers.
package lobby
