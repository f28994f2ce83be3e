// Package protocol implements the line protocol spoken on a replication
// connection.
//
// Each command is one line: a name, a space, and its arguments.
//
//	NAME <client_name>                              client -> server
//	REPLICATE                                       client -> server
//	PING <unix_ms>                                  both directions
//	SERVER <server_name>                            server -> client
//	RDATA <stream> <instance> <token|batch> <json>  server -> client
//	POSITION <stream> <instance> [<prev>] <token>   server -> client
//	REMOTE_SERVER_UP <server_name>                  server -> client
//	ERROR <message>                                 server -> client
//
// RDATA rows carrying the token "batch" are held until a row with a numeric
// token closes the batch.
package protocol
