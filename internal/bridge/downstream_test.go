package bridge

import "testing"

func TestExtractActiveImportWattsKWConversion(t *testing.T) {
	p := meterValuesPayload{}
	p.MeterValue = []struct {
		Timestamp    string `json:"timestamp"`
		SampledValue []struct {
			Value     string `json:"value"`
			Measurand string `json:"measurand,omitempty"`
			Unit      string `json:"unit,omitempty"`
		} `json:"sampledValue"`
	}{
		{
			SampledValue: []struct {
				Value     string `json:"value"`
				Measurand string `json:"measurand,omitempty"`
				Unit      string `json:"unit,omitempty"`
			}{
				{Value: "10", Measurand: "Energy.Active.Import.Register", Unit: "Wh"},
				{Value: "4.5", Measurand: "Power.Active.Import", Unit: "kW"},
			},
		},
	}

	watts, ok := extractActiveImportWatts(p)
	if !ok {
		t.Fatalf("expected a Power.Active.Import sample to be found")
	}
	if watts != 4500 {
		t.Fatalf("watts = %v, want 4500 (kW -> W conversion, spec S3)", watts)
	}
}

func TestExtractActiveImportWattsMissing(t *testing.T) {
	p := meterValuesPayload{}
	if _, ok := extractActiveImportWatts(p); ok {
		t.Fatalf("expected no Power.Active.Import sample to be found")
	}
}
