package msg

// MAPI property types, the low 16 bits of a property tag.
const (
	TypeUnspecified = 0x0000
	TypeNull        = 0x0001
	TypeInt16       = 0x0002
	TypeInt32       = 0x0003
	TypeFloat32     = 0x0004
	TypeFloat64     = 0x0005
	TypeCurrency    = 0x0006
	TypeApptTime    = 0x0007
	TypeError       = 0x000A
	TypeBool        = 0x000B
	TypeObject      = 0x000D
	TypeInt64       = 0x0014
	TypeString8     = 0x001E
	TypeUnicode     = 0x001F
	TypeTime        = 0x0040
	TypeGUID        = 0x0048
	TypeBinary      = 0x0102

	// TypeMultiFlag marks the multi-valued variants of the above.
	TypeMultiFlag = 0x1000
)

// Property IDs referenced directly by the decoder.
const (
	idMessageCodepage = 0x3FFD
	idInternetCPID    = 0x3FDE
	idAttachDataObj   = 0x3701
)

// AttachMethodEmbedded is the PidTagAttachMethod value for an embedded
// message object.
const AttachMethodEmbedded = 5

// propNames maps well-known transport-tag property IDs to the field
// names surfaced in Message.Props. Anything absent falls back to the
// synthetic "CCCCTTTT"-style key.
var propNames = map[uint16]string{
	0x0002: "alternateRecipientAllowed",
	0x0017: "importance",
	0x001A: "messageClass",
	0x0023: "originatorDeliveryReportRequested",
	0x0026: "priority",
	0x0029: "readReceiptRequested",
	0x0037: "subject",
	0x0039: "clientSubmitTime",
	0x003B: "sentRepresentingSearchKey",
	0x003D: "subjectPrefix",
	0x0042: "sentRepresentingName",
	0x0065: "sentRepresentingEmail",
	0x0070: "conversationTopic",
	0x0071: "conversationIndex",
	0x007D: "headers",
	0x0C15: "recipientType",
	0x0C1A: "senderName",
	0x0C1E: "senderAddressType",
	0x0C1F: "senderEmail",
	0x0E02: "displayBcc",
	0x0E03: "displayCc",
	0x0E04: "displayTo",
	0x0E06: "messageDeliveryTime",
	0x0E07: "messageFlags",
	0x0E08: "messageSize",
	0x0E1B: "hasAttachments",
	0x1000: "body",
	0x1009: "rtfCompressed",
	0x1013: "bodyHtml",
	0x1035: "internetMessageId",
	0x1039: "internetReferences",
	0x1042: "inReplyToId",
	0x3001: "displayName",
	0x3002: "addressType",
	0x3003: "emailAddress",
	0x3007: "creationTime",
	0x3008: "lastModificationTime",
	0x3701: "attachData",
	0x3703: "attachExtension",
	0x3704: "attachFilename",
	0x3705: "attachMethod",
	0x3707: "attachLongFilename",
	0x370E: "attachMimeTag",
	0x3712: "attachContentId",
	0x3714: "attachFlags",
	0x39FE: "smtpAddress",
	0x3A18: "department",
	0x3A44: "middleName",
	0x3FDE: "internetCodepage",
	0x3FFD: "messageCodepage",
}

// propName resolves a transport tag to its field name.
func propName(id, typ uint16) string {
	if name, ok := propNames[id]; ok {
		return name
	}
	return syntheticName(id, typ)
}
