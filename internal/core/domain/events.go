package domain

// Relay event names. Room-scoped events fan out to every client in the room;
// rtc-* events are addressed to a single peer via the payload's To field.
const (
	EventJoinDocument    = "join-document"
	EventLeaveDocument   = "leave-document"
	EventEditDocument    = "edit-document"
	EventDocumentUpdated = "document-updated"

	EventJoinVideo       = "join-video"
	EventUserJoinedVideo = "user-joined-video"
	EventUserLeftVideo   = "user-left-video"

	EventRTCOffer     = "rtc-offer"
	EventRTCAnswer    = "rtc-answer"
	EventRTCCandidate = "rtc-candidate"
)

type EditDocumentPayload struct {
	DocumentID DocumentID `json:"documentId"`
	Content    string     `json:"content"`
}

type JoinVideoPayload struct {
	DocID  DocumentID `json:"docId"`
	PeerID PeerID     `json:"peerId"`
}

type PeerPayload struct {
	PeerID PeerID `json:"peerId"`
}

// RTCSignalPayload carries one offer, answer or ICE candidate between two
// peers. The relay fans it out to the room; receivers drop payloads not
// addressed to them.
type RTCSignalPayload struct {
	From      PeerID `json:"from"`
	To        PeerID `json:"to"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}
