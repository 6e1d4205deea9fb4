package genlog

import "testing"

func TestExportGroupsBySectionAndPreservesTags(t *testing.T) {
	log := New()
	log.Section("elevation")
	log.Info("sampling grid", "points", 400)
	log.Warn("provider fallback", "from", "primary", "to", "secondary")
	log.Section("classify")
	log.Error("invariant violated", "cell", "3,4")
	log.OK("classification complete")

	out := log.Export()
	if out == "" {
		t.Fatal("expected non-empty export")
	}

	records := log.Records()
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[0].Section != "elevation" || records[0].Tag != TagInfo {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[2].Section != "classify" || records[2].Tag != TagError {
		t.Errorf("unexpected third record: %+v", records[2])
	}
	if records[1].Fields["from"] != "primary" || records[1].Fields["to"] != "secondary" {
		t.Errorf("expected warn fields preserved, got %+v", records[1].Fields)
	}
}

func TestHasErrorReflectsErrorTaggedEntries(t *testing.T) {
	log := New()
	log.Info("starting")
	if log.HasError() {
		t.Fatal("expected no error yet")
	}
	log.Error("boom")
	if !log.HasError() {
		t.Fatal("expected HasError true after an error entry")
	}
}

func TestDetailTagCapturedVerbatim(t *testing.T) {
	log := New()
	log.Detail("chunk fetched", "chunk", 3)
	records := log.Records()
	if len(records) != 1 || records[0].Tag != TagDetail {
		t.Fatalf("expected one detail record, got %+v", records)
	}
	if records[0].Fields["chunk"] != 3 {
		t.Errorf("expected chunk field preserved, got %+v", records[0].Fields)
	}
}
