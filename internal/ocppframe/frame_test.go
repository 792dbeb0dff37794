package ocppframe

import "testing"

func TestParseCall(t *testing.T) {
	f, err := Parse([]byte(`[2,"abc123","StatusNotification",{"status":"Charging"}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Type != Call || f.ID != "abc123" || f.Action != "StatusNotification" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseCallResult(t *testing.T) {
	f, err := Parse([]byte(`[3,"abc123",{"status":"Accepted"}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Type != CallResult || f.ID != "abc123" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseCallError(t *testing.T) {
	f, err := Parse([]byte(`[4,"abc123","NotSupported","desc",{}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Type != CallError {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"a":1}`,
		`[2,"id"]`,
		`[9,"id","Foo",{}]`,
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestBuildCall(t *testing.T) {
	data, err := BuildCall("msg-1", "TriggerMessage", map[string]any{"requestedMessage": "MeterValues"})
	if err != nil {
		t.Fatalf("BuildCall: %v", err)
	}
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("round-trip Parse: %v", err)
	}
	if f.Type != Call || f.ID != "msg-1" || f.Action != "TriggerMessage" {
		t.Fatalf("round-tripped frame mismatch: %+v", f)
	}
}
