// Package checkpoint journals how the last collection session for each
// subject ended, so a later run can report an interrupted collection.
//
// Journals live next to the follower database, one file per subject:
//
//	data/checkpoints/<subject>.checkpoint.json
//
// Files are replaced atomically through a temporary file and carry a format
// version.
package checkpoint
