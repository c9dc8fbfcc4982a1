package intake

import (
	"strings"
)

// Source keys of the single-value fields on an intake form.
const (
	KeyFirstName             = "firstName"
	KeyLastName              = "lastName"
	KeyHealthNumber          = "healthNumber"
	KeyDateOfBirth           = "dateOfBirth"
	KeyPrimaryContact        = "primaryContact"
	KeyAddress               = "address"
	KeyOrderingPhysicianName = "orderingPhysicianName"
	KeyPhysicianAddress      = "physicianAddress"
	KeyCustomerName          = "customerName"
	KeySex                   = "sex"
	KeySexMale               = "sexM"
	KeySexFemale             = "sexF"
)

// TestsTable is the only table whose cells are treated as requested tests.
const TestsTable = "testsRequestedOnlySelected"

const (
	markTrue     = "True"
	markFalse    = "False"
	markSelected = ":selected:"
	testSep      = "; "
)

// SingleValueKeys lists the per-form fields resolved by first-match lookup,
// in output order.
var SingleValueKeys = []string{
	KeyFirstName,
	KeyLastName,
	KeyHealthNumber,
	KeyDateOfBirth,
	KeyPrimaryContact,
	KeyAddress,
	KeyOrderingPhysicianName,
	KeyPhysicianAddress,
}

// reservedKeys are never reported as requested tests.
var reservedKeys = map[string]bool{
	KeyFirstName:             true,
	KeyLastName:              true,
	KeyHealthNumber:          true,
	KeyDateOfBirth:           true,
	KeyPrimaryContact:        true,
	KeyAddress:               true,
	KeyOrderingPhysicianName: true,
	KeyPhysicianAddress:      true,
	KeyCustomerName:          true,
	KeySex:                   true,
}

var testScrubber = strings.NewReplacer(";", " ", ",", " ", "\n", "")

// ScrubValue replaces commas so a value cannot split a report column.
func ScrubValue(v string) string {
	return strings.ReplaceAll(v, ",", " ")
}

// ScrubTest prepares a test name for the semicolon-separated tests column.
func ScrubTest(v string) string {
	return testScrubber.Replace(v)
}

// FileName returns the last path segment of a blob reference with commas
// turned into semicolons.
func FileName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.ReplaceAll(ref, ",", ";")
}

// LookupValue returns the value of key from the first document that defines
// it, or "" when no document does.
func LookupValue(docs []*FormDocument, key string) string {
	for _, d := range docs {
		if d == nil {
			continue
		}
		if v, ok := d.Fields.Get(key); ok {
			return ScrubValue(v)
		}
	}
	return ""
}

// Sex resolves the patient's sex. Within a document the sexM and sexF
// selection marks take precedence over a plain sex field; the first document
// that yields any of them wins. A sex key stored as null still ends the scan,
// with "".
func Sex(docs []*FormDocument) string {
	for _, d := range docs {
		if d == nil {
			continue
		}
		if v, ok := d.Fields.Get(KeySexMale); ok && v == markTrue {
			return "M"
		}
		if v, ok := d.Fields.Get(KeySexFemale); ok && v == markTrue {
			return "F"
		}
		if d.Fields.Contains(KeySex) {
			v, _ := d.Fields.Get(KeySex)
			return v
		}
	}
	return ""
}

// testName decides whether a field is a requested test. Selection marks name
// the test by their key; free-text fields name it by their value.
func testName(f Field) (string, bool) {
	if reservedKeys[f.Key] || f.Value == nil {
		return "", false
	}
	v := *f.Value
	if strings.TrimSpace(v) == "" || v == markFalse || f.Key == KeySexMale || f.Key == KeySexFemale {
		return "", false
	}
	if v == markTrue || strings.Contains(v, markSelected) || strings.Contains(f.Key, markSelected) {
		return f.Key, true
	}
	return v, true
}

// TestsFromFields collects the requested tests found among document fields.
// The result is "" or a sequence of "name; " entries.
func TestsFromFields(docs []*FormDocument) string {
	s, _ := testsFromFields(docs)
	return s
}

func testsFromFields(docs []*FormDocument) (string, int) {
	var b strings.Builder
	n := 0
	for _, d := range docs {
		if d == nil {
			continue
		}
		for _, f := range d.Fields {
			name, ok := testName(f)
			if !ok {
				continue
			}
			b.WriteString(ScrubTest(name))
			b.WriteString(testSep)
			n++
		}
	}
	return b.String(), n
}

// TestsFromTables collects every non-empty cell of the TestsTable tables.
func TestsFromTables(docs []*FormDocument) string {
	s, _ := testsFromTables(docs)
	return s
}

func testsFromTables(docs []*FormDocument) (string, int) {
	var b strings.Builder
	n := 0
	for _, d := range docs {
		if d == nil {
			continue
		}
		for _, t := range d.Tables {
			if t.Name != TestsTable {
				continue
			}
			for _, row := range t.Rows {
				for _, c := range row {
					if c.Value == "" {
						continue
					}
					b.WriteString(ScrubTest(c.Value))
					b.WriteString(testSep)
					n++
				}
			}
		}
	}
	return b.String(), n
}

// Tests joins field tests and table tests into the report's tests column.
func Tests(docs []*FormDocument) string {
	return joinTests(TestsFromFields(docs), TestsFromTables(docs))
}

func joinTests(fromFields, fromTables string) string {
	if strings.TrimSpace(fromTables) == "" {
		return fromFields
	}
	return fromFields + testSep + fromTables
}

// ExportRow is the flattened form of one FormRecord.
type ExportRow struct {
	FileName              string
	FirstName             string
	LastName              string
	HealthNumber          string
	DateOfBirth           string
	Sex                   string
	PrimaryContact        string
	Address               string
	OrderingPhysicianName string
	PhysicianAddress      string
	Tests                 string

	// FieldTests and TableTests count the entries that make up Tests.
	FieldTests int
	TableTests int
}

// Header is the first line of every report.
const Header = "File Name, First Name, Last Name, Health Number, DOB, Sex, Primary Contact, Address, Ordering Physician Name, Physician Address, Tests Requested"

const columnSep = ", "

// Line renders the row without a line terminator.
func (r ExportRow) Line() string {
	return strings.Join([]string{
		r.FileName,
		r.FirstName,
		r.LastName,
		r.HealthNumber,
		r.DateOfBirth,
		r.Sex,
		r.PrimaryContact,
		r.Address,
		r.OrderingPhysicianName,
		r.PhysicianAddress,
		r.Tests,
	}, columnSep)
}

// Derive flattens a record into its report row. A nil record or one without
// documents yields a row with only the file name set.
func Derive(rec *FormRecord) ExportRow {
	if rec == nil {
		return ExportRow{}
	}
	docs := rec.Documents

	fieldTests, nf := testsFromFields(docs)
	tableTests, nt := testsFromTables(docs)

	return ExportRow{
		FileName:              FileName(rec.BlobURL),
		FirstName:             LookupValue(docs, KeyFirstName),
		LastName:              LookupValue(docs, KeyLastName),
		HealthNumber:          LookupValue(docs, KeyHealthNumber),
		DateOfBirth:           LookupValue(docs, KeyDateOfBirth),
		Sex:                   Sex(docs),
		PrimaryContact:        LookupValue(docs, KeyPrimaryContact),
		Address:               LookupValue(docs, KeyAddress),
		OrderingPhysicianName: LookupValue(docs, KeyOrderingPhysicianName),
		PhysicianAddress:      LookupValue(docs, KeyPhysicianAddress),
		Tests:                 joinTests(fieldTests, tableTests),
		FieldTests:            nf,
		TableTests:            nt,
	}
}

// DuplicateKeys reports the single-value keys defined by more than one
// document of rec, with the number of documents defining each.
func DuplicateKeys(rec *FormRecord) map[string]int {
	if rec == nil || len(rec.Documents) < 2 {
		return nil
	}
	var dups map[string]int
	for _, key := range SingleValueKeys {
		n := 0
		for _, d := range rec.Documents {
			if d != nil && d.Fields.Has(key) {
				n++
			}
		}
		if n > 1 {
			if dups == nil {
				dups = make(map[string]int)
			}
			dups[key] = n
		}
	}
	return dups
}
