// Package schema describes the linked entity tables of the entry store.
//
// Every table is declared once, as a closed set of typed columns. Mutation
// payloads coming from synchronization clients are parsed against that
// declaration (see Table.Parse), so an unknown column or a value of the wrong
// type is rejected before any SQL is built.
//
// Layout:
//
//	collection ──< entry ──< attendee, category, comment, organizer,
//	                        relatedto, resource, attachment, alarm, unknown
//
// The entry table is the hub. Child tables reference it through entry_id with
// ON DELETE CASCADE; entry references collection the same way. The only
// cross-entry reference that is not a foreign key is relatedto.text, which
// carries the UID of another entry and is resolved by lookup.
package schema
