// Package mongo provides a MongoDB-backed implementation of the workflow
// session store. Build the low-level client via
// features/session/mongo/clients/mongo and pass it to NewStore so workflows
// can persist session records outside the core runtime.
package mongo
