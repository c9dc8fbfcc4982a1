package intake

import (
	"strings"
	"testing"
)

// fields builds an ordered field set from alternating key/value pairs.
func fields(kv ...string) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		f = append(f, Field{Key: kv[i], Value: &v})
	}
	return f
}

func doc(kv ...string) *FormDocument {
	return &FormDocument{Fields: fields(kv...)}
}

func TestDerive_EndToEndLine(t *testing.T) {
	rec := &FormRecord{
		BlobURL: "https://blob/store/forms/patient,42.pdf",
		Documents: []*FormDocument{
			doc("firstName", "Jane", "lastName", "Doe", "sexF", "True", "glucose", "True"),
		},
	}

	got := Derive(rec).Line()
	want := "patient;42.pdf, Jane, Doe, , , F, , , , , glucose; "
	if got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestDerive_NoDocuments(t *testing.T) {
	row := Derive(&FormRecord{BlobURL: "https://blob/store/forms/empty.pdf"})

	if row.FileName != "empty.pdf" {
		t.Errorf("expected file name empty.pdf, got %q", row.FileName)
	}
	for name, v := range map[string]string{
		"first name":   row.FirstName,
		"last name":    row.LastName,
		"health":       row.HealthNumber,
		"dob":          row.DateOfBirth,
		"sex":          row.Sex,
		"contact":      row.PrimaryContact,
		"address":      row.Address,
		"physician":    row.OrderingPhysicianName,
		"phys address": row.PhysicianAddress,
		"tests":        row.Tests,
	} {
		if v != "" {
			t.Errorf("expected empty %s, got %q", name, v)
		}
	}
	if got := strings.Count(row.Line(), ", "); got != 10 {
		t.Errorf("expected 10 separators, got %d", got)
	}
}

func TestDerive_NilRecord(t *testing.T) {
	if row := Derive(nil); row != (ExportRow{}) {
		t.Errorf("expected zero row, got %+v", row)
	}
}

func TestDerive_Counts(t *testing.T) {
	rec := &FormRecord{
		BlobURL: "a.pdf",
		Documents: []*FormDocument{{
			Fields: fields("cbc", "True", "note", "Lipid Panel", "skip", "False"),
			Tables: Tables{{
				Name: TestsTable,
				Rows: []Row{{{Column: "t", Value: "TSH"}, {Column: "u", Value: ""}}},
			}},
		}},
	}

	row := Derive(rec)
	if row.FieldTests != 2 {
		t.Errorf("expected 2 field tests, got %d", row.FieldTests)
	}
	if row.TableTests != 1 {
		t.Errorf("expected 1 table test, got %d", row.TableTests)
	}
	if row.Tests != "cbc; Lipid Panel; ; TSH; " {
		t.Errorf("unexpected tests %q", row.Tests)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://blob/store/forms/patient,42.pdf", "patient;42.pdf"},
		{"plain.pdf", "plain.pdf"},
		{"dir/", ""},
		{"", ""},
		{"a,b/c,d,e.pdf", "c;d;e.pdf"},
	}
	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookupValue_FirstMatch(t *testing.T) {
	docs := []*FormDocument{
		doc("lastName", "Ng"),
		nil,
		doc("firstName", "Amir", "lastName", "Other"),
		doc("firstName", "Later"),
	}

	if got := LookupValue(docs, KeyFirstName); got != "Amir" {
		t.Errorf("expected Amir, got %q", got)
	}
	if got := LookupValue(docs, KeyLastName); got != "Ng" {
		t.Errorf("expected Ng, got %q", got)
	}
	if got := LookupValue(docs, KeyAddress); got != "" {
		t.Errorf("expected empty address, got %q", got)
	}
}

func TestLookupValue_NullSkipped(t *testing.T) {
	docs := []*FormDocument{
		{Fields: Fields{{Key: KeyFirstName}}},
		doc("firstName", "Amir"),
	}
	if got := LookupValue(docs, KeyFirstName); got != "Amir" {
		t.Errorf("expected null value to be skipped, got %q", got)
	}
}

func TestLookupValue_ScrubsCommas(t *testing.T) {
	docs := []*FormDocument{doc("address", "1 Main St, Suite 4, Town")}
	if got := LookupValue(docs, KeyAddress); got != "1 Main St  Suite 4  Town" {
		t.Errorf("unexpected address %q", got)
	}
}

func TestSex(t *testing.T) {
	tests := []struct {
		name string
		docs []*FormDocument
		want string
	}{
		{"male mark wins over plain", []*FormDocument{doc("sex", "Q", "sexM", "True")}, "M"},
		{"female mark", []*FormDocument{doc("sexF", "True")}, "F"},
		{"male before female", []*FormDocument{doc("sexF", "True", "sexM", "True")}, "M"},
		{"unset male falls to female", []*FormDocument{doc("sexM", "False", "sexF", "True")}, "F"},
		{"plain value", []*FormDocument{doc("sex", "X")}, "X"},
		{"marks false then plain", []*FormDocument{doc("sexM", "False", "sexF", "False", "sex", "Q")}, "Q"},
		{"nothing", []*FormDocument{doc("firstName", "A")}, ""},
		{"first yielding document wins", []*FormDocument{doc("firstName", "A"), doc("sex", "F"), doc("sexM", "True")}, "F"},
		{"no documents", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sex(tt.docs); got != tt.want {
				t.Errorf("Sex() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSex_NullPlainValueEndsScan(t *testing.T) {
	docs := []*FormDocument{
		{Fields: Fields{{Key: KeySex}}},
		doc("sex", "F"),
	}
	if got := Sex(docs); got != "" {
		t.Errorf("expected a stored null sex to yield \"\", got %q", got)
	}
}

func TestSex_NullMarksFallThrough(t *testing.T) {
	docs := []*FormDocument{
		{Fields: Fields{{Key: KeySexMale}, {Key: KeySexFemale}}},
		doc("sexF", "True"),
	}
	if got := Sex(docs); got != "F" {
		t.Errorf("expected null marks to be skipped, got %q", got)
	}
}

func TestFields_Contains(t *testing.T) {
	f := Fields{{Key: "a"}, {Key: "b", Value: new(string)}}
	if !f.Contains("a") || !f.Contains("b") {
		t.Error("expected stored keys to be contained, null or not")
	}
	if f.Contains("c") {
		t.Error("unexpected key c")
	}
	if f.Has("a") {
		t.Error("Has must stay false for a null value")
	}
}

func TestTestsFromFields(t *testing.T) {
	tests := []struct {
		name string
		docs []*FormDocument
		want string
	}{
		{"selection mark names test by key", []*FormDocument{doc("glucose", "True")}, "glucose; "},
		{"free text names test by value", []*FormDocument{doc("note", "Lipid Panel")}, "Lipid Panel; "},
		{"false skipped", []*FormDocument{doc("glucose", "False")}, ""},
		{"blank skipped", []*FormDocument{doc("note", "  \t")}, ""},
		{"customer name reserved", []*FormDocument{doc("customerName", "Acme Labs")}, ""},
		{"sex keys skipped", []*FormDocument{doc("sex", "F", "sexM", "True", "sexF", "True")}, ""},
		{"selected in value", []*FormDocument{doc("a1c", ":selected: yes")}, "a1c; "},
		{"selected in key", []*FormDocument{doc("ferritin:selected:", "x")}, "ferritin:selected:; "},
		{"scrubbed", []*FormDocument{doc("note", "B12;\nfolate, iron")}, "B12 folate  iron; "},
		{
			"across documents in order",
			[]*FormDocument{doc("b", "True", "a", "True"), nil, doc("c", "Vitamin D")},
			"b; a; Vitamin D; ",
		},
		{"no dedup", []*FormDocument{doc("x", "CBC"), doc("y", "CBC")}, "CBC; CBC; "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TestsFromFields(tt.docs); got != tt.want {
				t.Errorf("TestsFromFields() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTestsFromFields_NullSkipped(t *testing.T) {
	docs := []*FormDocument{{Fields: Fields{{Key: "glucose"}}}}
	if got := TestsFromFields(docs); got != "" {
		t.Errorf("expected null field to be skipped, got %q", got)
	}
}

func TestTestsFromTables(t *testing.T) {
	docs := []*FormDocument{
		{Tables: Tables{
			{Name: "other", Rows: []Row{{{Column: "c", Value: "ignored"}}}},
			{Name: TestsTable, Rows: []Row{
				{{Column: "a", Value: "CBC"}, {Column: "b", Value: ""}},
				{{Column: "a", Value: "TSH, free;T4"}},
			}},
		}},
		nil,
		{Tables: Tables{{Name: TestsTable, Rows: []Row{{{Column: "a", Value: "Ferritin\n"}}}}}},
	}

	want := "CBC; TSH  free T4; Ferritin; "
	if got := TestsFromTables(docs); got != want {
		t.Errorf("TestsFromTables() = %q, want %q", got, want)
	}
}

func TestTests_Join(t *testing.T) {
	tests := []struct {
		name string
		doc  *FormDocument
		want string
	}{
		{"fields only", doc("glucose", "True"), "glucose; "},
		{
			"tables only",
			&FormDocument{Tables: Tables{{Name: TestsTable, Rows: []Row{{{Column: "a", Value: "CBC"}}}}}},
			"; CBC; ",
		},
		{
			"both",
			&FormDocument{
				Fields: fields("glucose", "True"),
				Tables: Tables{{Name: TestsTable, Rows: []Row{{{Column: "a", Value: "CBC"}}}}},
			},
			"glucose; ; CBC; ",
		},
		{"neither", doc("firstName", "A"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tests([]*FormDocument{tt.doc}); got != tt.want {
				t.Errorf("Tests() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScrub_Idempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"a,b;c\nd",
		";;,,\n\n",
		"",
		"already scrubbed  value",
	}
	for _, in := range inputs {
		once := ScrubTest(in)
		if twice := ScrubTest(once); twice != once {
			t.Errorf("ScrubTest not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.ContainsAny(once, ";,\n") {
			t.Errorf("ScrubTest(%q) = %q still contains a separator", in, once)
		}

		v := ScrubValue(in)
		if ScrubValue(v) != v {
			t.Errorf("ScrubValue not idempotent for %q", in)
		}
	}
}

func TestDuplicateKeys(t *testing.T) {
	rec := &FormRecord{Documents: []*FormDocument{
		doc("firstName", "A", "lastName", "B", "glucose", "True"),
		doc("firstName", "C", "glucose", "True"),
		nil,
		doc("firstName", "D", "lastName", "E"),
	}}

	dups := DuplicateKeys(rec)
	if dups[KeyFirstName] != 3 {
		t.Errorf("expected firstName in 3 documents, got %d", dups[KeyFirstName])
	}
	if dups[KeyLastName] != 2 {
		t.Errorf("expected lastName in 2 documents, got %d", dups[KeyLastName])
	}
	if _, ok := dups["glucose"]; ok {
		t.Error("tests must not be reported as duplicate single-value keys")
	}
}

func TestDuplicateKeys_None(t *testing.T) {
	if dups := DuplicateKeys(&FormRecord{Documents: []*FormDocument{doc("firstName", "A")}}); dups != nil {
		t.Errorf("expected no duplicates, got %v", dups)
	}
	if dups := DuplicateKeys(nil); dups != nil {
		t.Errorf("expected no duplicates for nil record, got %v", dups)
	}
}

func TestHeader_ColumnCount(t *testing.T) {
	if got := len(strings.Split(Header, ", ")); got != 11 {
		t.Errorf("expected 11 header columns, got %d", got)
	}
}
