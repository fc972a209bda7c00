// Package graph implements the reactive node graph: ports that push values
// synchronously through connections, the node abstraction that owns them,
// a registry of node factories, and the Graph container that tracks visible
// and hidden nodes with their canvas positions.
package graph
