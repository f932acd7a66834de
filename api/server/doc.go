/*
Package server exposes a node.Storage as a JSON HTTP API.

Routes:

	GET    /node/{path}      read the node (query: include, exclude, no_child_objects)
	PUT    /node/{path}      replace the node with the JSON body
	PATCH  /node/{path}      merge the JSON object body into the node, null removes a key
	DELETE /node/{path}      remove the node and all its children
	GET    /info/{path}      where and how the node is stored
	GET    /children/{path}  the children of the node (query: key, limit)
	GET    /metrics          prometheus metrics
	GET    /debug/locks      held locks, ?stats=true for the lock statistics
	GET    /debug/requests   handled requests per route

The root node is addressed as /node/. The X-Tid header sets the transaction id of a
request, PUT honours X-Assert-Revision. Failed requests answer with
{"code": "...", "path": "...", "error": "..."} where code is the name of the node.RetCode.
*/
package server
