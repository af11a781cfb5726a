package x12

import (
	"strings"
	"testing"
	"time"
)

func sampleInquiry() Inquiry {
	dob := time.Date(2015, 6, 2, 0, 0, 0, 0, time.UTC)
	return Inquiry{
		SubscriberFirstName: "Jane",
		SubscriberLastName:  "Doe",
		MemberID:            "W123456789",
		GroupNumber:         "GRP-44",
		DateOfBirth:         &dob,
		PayerName:           "Aetna",
		PayerID:             "60054",
		ProviderName:        "Sprout Health",
		ProviderNPI:         "1234567890",
		ServiceDate:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func tags(tx *Transaction) []string {
	out := make([]string, len(tx.Segments))
	for i, s := range tx.Segments {
		out[i] = s.Tag
	}
	return out
}

func TestEncodeInquiry_SegmentOrder(t *testing.T) {
	tx := EncodeInquiry(sampleInquiry())

	want := []string{"ST", "BHT", "HL", "NM1", "HL", "NM1", "HL", "NM1", "REF", "REF", "DMG", "DTP", "EQ", "EQ", "SE"}
	got := tags(tx)
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	st := tx.Segment("ST")
	if st.Element(1) != "270" {
		t.Errorf("expected ST-1 '270', got %q", st.Element(1))
	}
}

func TestEncodeInquiry_OptionalSegmentsOmitted(t *testing.T) {
	inq := sampleInquiry()
	inq.GroupNumber = ""
	inq.DateOfBirth = nil

	tx := EncodeInquiry(inq)

	if tx.Segment("DMG") != nil {
		t.Error("expected DMG to be omitted when DOB is absent")
	}
	refs := tx.SegmentsByTag("REF")
	if len(refs) != 1 {
		t.Fatalf("expected 1 REF segment (member ID only), got %d", len(refs))
	}
	if refs[0].Element(1) != "1L" {
		t.Errorf("expected member-ID REF qualifier '1L', got %q", refs[0].Element(1))
	}
}

func TestEncodeInquiry_ServiceTypes(t *testing.T) {
	tx := EncodeInquiry(sampleInquiry())

	eqs := tx.SegmentsByTag("EQ")
	if len(eqs) != 2 {
		t.Fatalf("expected 2 EQ segments, got %d", len(eqs))
	}
	if eqs[0].Element(1) != ServiceTypeHealthPlan {
		t.Errorf("expected first EQ to request general health plan coverage, got %q", eqs[0].Element(1))
	}
	if eqs[1].Element(1) != ServiceTypeMentalHealth {
		t.Errorf("expected second EQ to request mental health, got %q", eqs[1].Element(1))
	}
}

func TestEncodeInquiry_FreshControlNumbers(t *testing.T) {
	a := EncodeInquiry(sampleInquiry())
	b := EncodeInquiry(sampleInquiry())

	if a.Segment("ST").Element(2) == b.Segment("ST").Element(2) {
		t.Error("expected distinct control numbers per transaction")
	}
	if a.Segment("BHT").Element(3) == b.Segment("BHT").Element(3) {
		t.Error("expected distinct trace IDs per transaction")
	}
}

func TestRoundTrip(t *testing.T) {
	encoded := EncodeInquiry(sampleInquiry())
	decoded, err := Decode(encoded.Marshal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(decoded.Segments) != len(encoded.Segments) {
		t.Fatalf("expected %d segments after round trip, got %d", len(encoded.Segments), len(decoded.Segments))
	}
	for i := range encoded.Segments {
		want := encoded.Segments[i]
		got := decoded.Segments[i]
		if got.Tag != want.Tag {
			t.Errorf("segment %d: expected tag %s, got %s", i, want.Tag, got.Tag)
			continue
		}
		if len(got.Elements) != len(want.Elements) {
			t.Errorf("segment %d (%s): expected %d elements, got %d", i, want.Tag, len(want.Elements), len(got.Elements))
			continue
		}
		for j := range want.Elements {
			if got.Elements[j] != want.Elements[j] {
				t.Errorf("segment %d (%s) element %d: expected %q, got %q", i, want.Tag, j+1, want.Elements[j], got.Elements[j])
			}
		}
	}
}

func TestDecode_UnknownTagsPreserved(t *testing.T) {
	raw := "ST*271*000000001~ZZZ*custom*payload~EB*1*IND*30~SE*4*000000001~"
	tx, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zzz := tx.Segment("ZZZ")
	if zzz == nil {
		t.Fatal("expected unknown ZZZ segment to be preserved")
	}
	if zzz.Element(1) != "custom" || zzz.Element(2) != "payload" {
		t.Errorf("unexpected ZZZ elements: %v", zzz.Elements)
	}
}

func TestDecode_ToleratesWhitespaceBetweenSegments(t *testing.T) {
	raw := "ST*271*1~\nEB*1*IND*MH~\n SE*3*1~\n"
	tx, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tx.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tx.Segments))
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("expected error for empty transmission")
	}
	if _, err := Decode([]byte("~~  ~")); err == nil {
		t.Error("expected error for transmission with no segments")
	}
}

func TestSubscriberMemberID(t *testing.T) {
	tx := EncodeInquiry(sampleInquiry())
	if got := SubscriberMemberID(tx); got != "W123456789" {
		t.Errorf("expected member ID W123456789, got %q", got)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("20260301")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 1 {
		t.Errorf("unexpected date: %v", got)
	}

	for _, bad := range []string{"", "2026030", "notadate", "2026-03-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestMarshal_Delimiters(t *testing.T) {
	tx := &Transaction{Segments: []Segment{
		{Tag: "EB", Elements: []string{"1", "", "MH"}},
	}}
	got := string(tx.Marshal())
	if got != "EB*1**MH~" {
		t.Errorf("unexpected wire form: %q", got)
	}
	if !strings.HasSuffix(got, SegmentTerminator) {
		t.Error("expected trailing segment terminator")
	}
}
