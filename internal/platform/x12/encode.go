package x12

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Service type codes requested on every inquiry.
const (
	ServiceTypeHealthPlan   = "30" // health benefit plan coverage
	ServiceTypeMentalHealth = "MH" // mental health
	ServiceTypePsychiatric  = "A4" // psychiatric
)

// DTP qualifiers used by the 270/271 pair.
const (
	DateQualifierService     = "291"
	DateQualifierEffective   = "348"
	DateQualifierTermination = "349"
)

// Inquiry is the immutable input to a single 270 encoding. A fresh value is
// created per verification attempt and never mutated.
type Inquiry struct {
	SubscriberFirstName string
	SubscriberLastName  string
	MemberID            string
	GroupNumber         string     // optional
	DateOfBirth         *time.Time // optional
	PayerName           string
	PayerID             string
	ProviderName        string
	ProviderNPI         string
	ServiceDate         time.Time
}

// controlSeq feeds control numbers. Seeded from the clock so restarts do not
// immediately reuse recent numbers; uniqueness per transaction is all the
// protocol requires.
var controlSeq atomic.Uint64

func init() {
	controlSeq.Store(uint64(time.Now().UnixNano()) % 1_000_000_000)
}

func nextControlNumber() string {
	return fmt.Sprintf("%09d", controlSeq.Add(1)%1_000_000_000)
}

// EncodeInquiry builds the 270 transaction for an inquiry. Segment order is
// fixed: ST, BHT, payer HL/NM1, provider HL/NM1, subscriber HL/NM1, member-ID
// REF, optional group REF, optional DMG, service DTP, one EQ per service type,
// SE. Optional segments are omitted entirely when the source field is absent.
func EncodeInquiry(inq Inquiry) *Transaction {
	control := nextControlNumber()
	traceID := strings.ReplaceAll(uuid.New().String(), "-", "")
	now := time.Now().UTC()

	tx := &Transaction{}
	add := func(tag string, elements ...string) {
		tx.Segments = append(tx.Segments, Segment{Tag: tag, Elements: elements})
	}

	add("ST", "270", control)
	add("BHT", "0022", "13", traceID, now.Format("20060102"), now.Format("1504"))

	// HL 1: information source (payer)
	add("HL", "1", "", "20", "1")
	add("NM1", "PR", "2", inq.PayerName, "", "", "", "", "PI", inq.PayerID)

	// HL 2: information receiver (provider)
	add("HL", "2", "1", "21", "1")
	add("NM1", "1P", "2", inq.ProviderName, "", "", "", "", "XX", inq.ProviderNPI)

	// HL 3: subscriber
	add("HL", "3", "2", "22", "0")
	add("NM1", "IL", "1", inq.SubscriberLastName, inq.SubscriberFirstName, "", "", "", "MI", inq.MemberID)
	add("REF", "1L", inq.MemberID)

	if inq.GroupNumber != "" {
		add("REF", "6P", inq.GroupNumber)
	}
	if inq.DateOfBirth != nil {
		add("DMG", "D8", FormatDate(*inq.DateOfBirth))
	}

	serviceDate := inq.ServiceDate
	if serviceDate.IsZero() {
		serviceDate = now
	}
	add("DTP", DateQualifierService, "D8", FormatDate(serviceDate))

	add("EQ", ServiceTypeHealthPlan)
	add("EQ", ServiceTypeMentalHealth)

	// SE count includes ST and SE themselves.
	add("SE", fmt.Sprintf("%d", len(tx.Segments)+1), control)

	return tx
}

// SubscriberMemberID reads the member ID back out of an encoded 270. Used by
// the deterministic transport simulator to key its canned responses.
func SubscriberMemberID(tx *Transaction) string {
	if ref := tx.Segment("REF"); ref != nil && ref.Element(1) == "1L" {
		return ref.Element(2)
	}
	for _, nm1 := range tx.SegmentsByTag("NM1") {
		if nm1.Element(1) == "IL" {
			return nm1.Element(9)
		}
	}
	return ""
}
