// Package lsnp implements a peer node for the Local Social Networking
// Protocol.
//
// LSNP is a serverless social network for a single broadcast domain. Every
// node binds the same UDP port, announces itself by broadcasting PROFILE and
// PING beats, and exchanges human-readable "KEY: VALUE" datagrams for posts,
// direct messages, likes, follows, groups, chunked file transfers, and a
// tic-tac-toe mini-game. Scoped capability tokens gate each message class;
// anything that fails validation is dropped without a reply.
//
// # Getting Started
//
// Create a node with options, register callbacks, and start it:
//
//	opts := lsnp.NewOptions()
//	opts.UserID = "alice@192.168.1.10"
//	opts.DisplayName = "Alice"
//
//	node, err := lsnp.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	node.OnPost(func(post state.Post) {
//	    fmt.Printf("%s: %s\n", post.Author, post.Content)
//	})
//	node.OnDM(func(dm state.DirectMessage) {
//	    fmt.Printf("[DM] %s: %s\n", dm.From, dm.Content)
//	})
//
//	if err := node.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	node.SendPost("hello, local network")
//
// Callbacks must be registered before Start; they are invoked from the
// receive path, one goroutine per datagram.
//
// # Receiving
//
// Incoming datagrams pass a fixed pipeline: per-source rate limiting, wire
// decoding, a required-field check, token validation against the message
// type's scope, and an addressing check for unicast types. Survivors update
// peer liveness and reach their handler. Every drop is counted by reason on
// the lsnp_messages_dropped_total metric, so a misbehaving peer shows up in
// /metrics rather than in a reply on the wire.
//
// # Persistence
//
// Durable state (peers, posts, DMs, likes, follows, groups) lives in a JSON
// snapshot at Options.CachePath. Social mutations save immediately; liveness
// churn is batched and flushed on the presence tick and at Stop. An empty
// CachePath keeps the node entirely in memory.
package lsnp
