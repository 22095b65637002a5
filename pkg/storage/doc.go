/*
Package storage provides BoltDB-backed persistence for the event engine.

BoltStore keeps everything in a single file, <dataDir>/appevent.db, split into
buckets:

	events           8-byte big endian id -> event row (JSON)
	user_ids         name -> value
	user_properties  name -> value
	processors       8-byte big endian id -> ProcessorRecord (JSON)
	custom_params    running id \x00 domain \x00 name -> map of Values (JSON)
	meta             event_bytes -> running byte total of the events bucket

Event ids come from the events bucket sequence and keep increasing across
ClearEvents. A byte quota (SetQuota) is enforced after every append by
deleting the oldest rows until the total fits; AppendEvent reports how many
rows it evicted.

All writes go through db.Update, so each call is one ACID transaction. Reads
use db.View and may run concurrently with each other.
*/
package storage
