package schema

// Shared columns.
const (
	ColID      ColumnID = "id"
	ColEntryID ColumnID = "entry_id"
	ColOther   ColumnID = "other"
	ColText    ColumnID = "text"
	ColLang    ColumnID = "language"
	ColAltRep  ColumnID = "altrep"
)

// Collection columns.
const (
	ColAccountName     ColumnID = "account_name"
	ColAccountType     ColumnID = "account_type"
	ColDisplayName     ColumnID = "display_name"
	ColCollDescription ColumnID = "description"
	ColURL             ColumnID = "url"
	ColColor           ColumnID = "color"
	ColOwner           ColumnID = "owner"
	ColSupportsJournal ColumnID = "supports_journal"
	ColSupportsNote    ColumnID = "supports_note"
	ColSupportsTodo    ColumnID = "supports_todo"
	ColReadOnly        ColumnID = "readonly"
	ColSyncVersion     ColumnID = "sync_version"
	ColLastSync        ColumnID = "last_sync"
)

// Entry columns.
const (
	ColCollectionID    ColumnID = "collection_id"
	ColKind            ColumnID = "kind"
	ColUID             ColumnID = "uid"
	ColSummary         ColumnID = "summary"
	ColDescription     ColumnID = "description"
	ColLocation        ColumnID = "location"
	ColStatus          ColumnID = "status"
	ColClassification  ColumnID = "classification"
	ColPriority        ColumnID = "priority"
	ColPercent         ColumnID = "percent"
	ColGeoLat          ColumnID = "geo_lat"
	ColGeoLong         ColumnID = "geo_long"
	ColContact         ColumnID = "contact"
	ColDTStart         ColumnID = "dtstart"
	ColDTStartTZ       ColumnID = "dtstart_timezone"
	ColDue             ColumnID = "due"
	ColDueTZ           ColumnID = "due_timezone"
	ColCompleted       ColumnID = "completed"
	ColCompletedTZ     ColumnID = "completed_timezone"
	ColDuration        ColumnID = "duration"
	ColRRule           ColumnID = "rrule"
	ColExDate          ColumnID = "exdate"
	ColRDate           ColumnID = "rdate"
	ColRecurID         ColumnID = "recurid"
	ColRecurIDTZ       ColumnID = "recurid_timezone"
	ColRecurLinked     ColumnID = "recur_linkedinstance"
	ColRecurOriginalID ColumnID = "recur_original_id"
	ColSequence        ColumnID = "sequence"
	ColDirty           ColumnID = "dirty"
	ColDeleted         ColumnID = "deleted"
	ColETag            ColumnID = "etag"
	ColScheduleTag     ColumnID = "scheduletag"
	ColFileName        ColumnID = "filename"
	ColCreated         ColumnID = "created"
	ColLastModified    ColumnID = "last_modified"
	ColDTStamp         ColumnID = "dtstamp"
)

// Attendee and organizer columns.
const (
	ColCalAddress    ColumnID = "caladdress"
	ColCN            ColumnID = "cn"
	ColCUType        ColumnID = "cutype"
	ColDelegatedFrom ColumnID = "delegatedfrom"
	ColDelegatedTo   ColumnID = "delegatedto"
	ColDir           ColumnID = "dir"
	ColMember        ColumnID = "member"
	ColPartStat      ColumnID = "partstat"
	ColRole          ColumnID = "role"
	ColRSVP          ColumnID = "rsvp"
	ColSentBy        ColumnID = "sentby"
)

// RelatedTo columns.
const (
	ColRelType ColumnID = "reltype"
)

// Attachment columns.
const (
	ColURI      ColumnID = "uri"
	ColBinary   ColumnID = "binary"
	ColFmtType  ColumnID = "fmttype"
	ColFileSize ColumnID = "filesize"
)

// Alarm columns.
const (
	ColAction                  ColumnID = "action"
	ColAlarmSummary            ColumnID = "summary"
	ColAlarmDescription        ColumnID = "description"
	ColAlarmAttendee           ColumnID = "attendee"
	ColRepeat                  ColumnID = "repeat"
	ColAttach                  ColumnID = "attach"
	ColTriggerTime             ColumnID = "trigger_time"
	ColTriggerTZ               ColumnID = "trigger_timezone"
	ColTriggerRelativeTo       ColumnID = "trigger_relative_to"
	ColTriggerRelativeDuration ColumnID = "trigger_relative_duration"
)

// Unknown columns.
const (
	ColValue ColumnID = "value"
)

func col(id ColumnID, t ColumnType) Column { return Column{ID: id, Type: t} }

var (
	Collection = register(newTable(TableCollection, "",
		col(ColAccountName, TypeText),
		col(ColAccountType, TypeText),
		col(ColDisplayName, TypeText),
		col(ColCollDescription, TypeText),
		col(ColURL, TypeText),
		col(ColColor, TypeInteger),
		col(ColOwner, TypeText),
		col(ColSupportsJournal, TypeBool),
		col(ColSupportsNote, TypeBool),
		col(ColSupportsTodo, TypeBool),
		col(ColReadOnly, TypeBool),
		col(ColSyncVersion, TypeText),
		col(ColLastSync, TypeInteger),
	))

	Entry = register(newTable(TableEntry, ColCollectionID,
		col(ColCollectionID, TypeInteger),
		col(ColKind, TypeText),
		col(ColUID, TypeText),
		col(ColSummary, TypeText),
		col(ColDescription, TypeText),
		col(ColLocation, TypeText),
		col(ColURL, TypeText),
		col(ColStatus, TypeText),
		col(ColClassification, TypeText),
		col(ColPriority, TypeInteger),
		col(ColPercent, TypeInteger),
		col(ColColor, TypeInteger),
		col(ColGeoLat, TypeReal),
		col(ColGeoLong, TypeReal),
		col(ColContact, TypeText),
		col(ColDTStart, TypeInteger),
		col(ColDTStartTZ, TypeText),
		col(ColDue, TypeInteger),
		col(ColDueTZ, TypeText),
		col(ColCompleted, TypeInteger),
		col(ColCompletedTZ, TypeText),
		col(ColDuration, TypeText),
		col(ColRRule, TypeText),
		col(ColExDate, TypeText),
		col(ColRDate, TypeText),
		col(ColRecurID, TypeInteger),
		col(ColRecurIDTZ, TypeText),
		col(ColRecurLinked, TypeBool),
		col(ColRecurOriginalID, TypeInteger),
		col(ColSequence, TypeInteger),
		col(ColDirty, TypeBool),
		col(ColDeleted, TypeBool),
		col(ColETag, TypeText),
		col(ColScheduleTag, TypeText),
		col(ColFileName, TypeText),
		col(ColCreated, TypeInteger),
		col(ColLastModified, TypeInteger),
		col(ColDTStamp, TypeInteger),
	))

	Attendee = register(newTable(TableAttendee, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColCalAddress, TypeText),
		col(ColCN, TypeText),
		col(ColCUType, TypeText),
		col(ColDelegatedFrom, TypeText),
		col(ColDelegatedTo, TypeText),
		col(ColDir, TypeText),
		col(ColLang, TypeText),
		col(ColMember, TypeText),
		col(ColPartStat, TypeText),
		col(ColRole, TypeText),
		col(ColRSVP, TypeBool),
		col(ColSentBy, TypeText),
		col(ColOther, TypeText),
	))

	Category = register(newTable(TableCategory, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColText, TypeText),
		col(ColLang, TypeText),
		col(ColOther, TypeText),
	))

	Comment = register(newTable(TableComment, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColText, TypeText),
		col(ColAltRep, TypeText),
		col(ColLang, TypeText),
		col(ColOther, TypeText),
	))

	Organizer = register(newTable(TableOrganizer, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColCalAddress, TypeText),
		col(ColCN, TypeText),
		col(ColDir, TypeText),
		col(ColSentBy, TypeText),
		col(ColLang, TypeText),
		col(ColOther, TypeText),
	))

	RelatedTo = register(newTable(TableRelatedTo, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColText, TypeText),
		col(ColRelType, TypeText),
		col(ColOther, TypeText),
	))

	Resource = register(newTable(TableResource, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColText, TypeText),
		col(ColAltRep, TypeText),
		col(ColLang, TypeText),
		col(ColOther, TypeText),
	))

	Attachment = register(newTable(TableAttachment, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColURI, TypeText),
		col(ColBinary, TypeBlob),
		col(ColFmtType, TypeText),
		col(ColFileName, TypeText),
		col(ColFileSize, TypeInteger),
		col(ColOther, TypeText),
	))

	Alarm = register(newTable(TableAlarm, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColAction, TypeText),
		col(ColAlarmSummary, TypeText),
		col(ColAlarmDescription, TypeText),
		col(ColAlarmAttendee, TypeText),
		col(ColDuration, TypeText),
		col(ColRepeat, TypeInteger),
		col(ColAttach, TypeText),
		col(ColTriggerTime, TypeInteger),
		col(ColTriggerTZ, TypeText),
		col(ColTriggerRelativeTo, TypeText),
		col(ColTriggerRelativeDuration, TypeText),
		col(ColOther, TypeText),
	))

	Unknown = register(newTable(TableUnknown, ColEntryID,
		col(ColEntryID, TypeInteger),
		col(ColValue, TypeText),
	))
)
