// Package cli is the interactive studyctl client.
//
// It wires configuration, the local fallback cache, the transport client,
// the session manager, the entity services and the push bridge into a
// REPL. The prompt carries an [offline] marker while answers come from the
// local cache; queued offline writes are replayed on "sync", on the next
// successful listing and whenever the push stream reconnects.
//
// Typical flow: NewApp, then App.Run, which resolves any cached session,
// prompts for commands until "exit" and closes everything on return.
package cli
