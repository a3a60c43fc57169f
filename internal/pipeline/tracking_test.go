package pipeline

import (
	"testing"

	"flipflow/internal"
	"flipflow/internal/patterns"
)

func TestClassifyTrackingUPSAlwaysWins(t *testing.T) {
	lib := patterns.Default()

	// UPS value buried after a USPS-shaped number still wins.
	content := "USPS 94001234567890123456 then UPS 1Z24WA430206362750"
	res := ClassifyTracking(content, lib.Tracking)
	if res.Value == nil {
		t.Fatal("no value")
	}
	if *res.Value != "1Z24WA430206362750" || res.Carrier != internal.CarrierUPS {
		t.Fatalf("got %q carrier=%s", *res.Value, res.Carrier)
	}
	if res.CarrierPriority != 1 {
		t.Fatalf("priority=%d", res.CarrierPriority)
	}
}

func TestClassifyTrackingByCarrier(t *testing.T) {
	lib := patterns.Default()

	cases := []struct {
		name    string
		content string
		want    string
		carrier internal.Carrier
	}{
		{name: "ups lowercase", content: "tracking 1z24wa430206362750", want: "1Z24WA430206362750", carrier: internal.CarrierUPS},
		{name: "fedex 12", content: "FedEx tracking 123456789012", want: "123456789012", carrier: internal.CarrierFedEx},
		{name: "fedex 14", content: "label 12345678901234 attached", want: "12345678901234", carrier: internal.CarrierFedEx},
		{name: "usps 20", content: "USPS 94001234567890123456", want: "94001234567890123456", carrier: internal.CarrierUSPS},
		{name: "usps 22", content: "9400123456789012345678 in transit", want: "9400123456789012345678", carrier: internal.CarrierUSPS},
		{name: "marketplace internal", content: "shipment id 890123456789", want: "890123456789", carrier: internal.CarrierStockX},
		{name: "generic fallback", content: "reference 12345678901", want: "12345678901", carrier: internal.CarrierNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ClassifyTracking(tc.content, lib.Tracking)
			if res.Value == nil {
				t.Fatalf("no value, attempts=%+v", res.AllAttempts)
			}
			if *res.Value != tc.want || res.Carrier != tc.carrier {
				t.Fatalf("got %q carrier=%s want %q carrier=%s", *res.Value, res.Carrier, tc.want, tc.carrier)
			}
		})
	}
}

func TestClassifyTrackingExclusions(t *testing.T) {
	lib := patterns.Default()

	cases := []struct {
		name    string
		content string
	}{
		{name: "phone number", content: "call 2025551234 with questions"},
		{name: "zip and year", content: "Portland OR 97201 since 2023"},
		{name: "nothing numeric", content: "your order is on its way"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ClassifyTracking(tc.content, lib.Tracking)
			if res.Value != nil {
				t.Fatalf("want no value, got %q (%s)", *res.Value, res.Carrier)
			}
			if res.Carrier != internal.CarrierNone {
				t.Fatalf("carrier=%s", res.Carrier)
			}
		})
	}
}

func TestClassifyTrackingTrailIsRecorded(t *testing.T) {
	lib := patterns.Default()

	res := ClassifyTracking("numbers 2025551234 and 94001234567890123456", lib.Tracking)
	if res.Value == nil || res.Carrier != internal.CarrierUSPS {
		t.Fatalf("res=%+v", res)
	}

	sawInvalid := false
	for _, attempt := range res.AllAttempts {
		if !attempt.Valid {
			sawInvalid = true
		}
	}
	if !sawInvalid {
		t.Fatal("excluded phone candidate missing from trail")
	}
}
