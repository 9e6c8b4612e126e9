package isl12020

import (
	"errors"
	"testing"
)

func TestTemperatureRequiresSensing(t *testing.T) {
	f := newFakeChip()
	d := newTestDevice(f, VariantISL12020M)
	before := f.txCount

	if _, err := d.TemperatureMilliC(); !errors.Is(err, ErrCompensationOff) {
		t.Fatalf("error = %v", err)
	}
	if f.txCount != before {
		t.Fatalf("bus accessed with sensing disabled: %d transactions", f.txCount-before)
	}
}

func TestTemperatureConversion(t *testing.T) {
	cases := []struct {
		variant Variant
		raw     uint16
		want    int32
	}{
		// Raw code zero is the variant's Celsius origin.
		{VariantISL12020M, 0, -273000},
		// 746 half-Kelvin steps on the 369000-offset chip: 373000-369000.
		{VariantISL12020, 746, 4000},
		// 25.0°C on the module variant.
		{VariantISL12020M, 596, 25000},
	}
	for _, c := range cases {
		f := newFakeChip()
		f.regs[regTempTK0L] = byte(c.raw)
		f.regs[regTempTK0M] = byte(c.raw >> 8)

		d := newTestDevice(f, c.variant)
		if err := d.SetCompensation(true, false, false); err != nil {
			t.Fatalf("set compensation: %v", err)
		}
		got, err := d.TemperatureMilliC()
		if err != nil {
			t.Fatalf("%v raw %d: %v", c.variant, c.raw, err)
		}
		if got != c.want {
			t.Fatalf("%v raw %d: got %d milli-°C, want %d", c.variant, c.raw, got, c.want)
		}
	}
}

func TestTemperatureMasksUpperBits(t *testing.T) {
	f := newFakeChip()
	// Stray bits above the 10-bit code must be ignored.
	f.regs[regTempTK0L] = 0x54 // 596 = 0x254
	f.regs[regTempTK0M] = 0xFE

	d := newTestDevice(f, VariantISL12020M)
	if err := d.SetCompensation(true, false, false); err != nil {
		t.Fatalf("set compensation: %v", err)
	}
	got, err := d.TemperatureMilliC()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 25000 {
		t.Fatalf("got %d milli-°C, want 25000", got)
	}
}

func TestTemperatureReadFailure(t *testing.T) {
	f := newFakeChip()
	d := newTestDevice(f, VariantISL12020M)
	if err := d.SetCompensation(true, false, false); err != nil {
		t.Fatalf("set compensation: %v", err)
	}

	f.failReg[regTempTK0L] = true
	if _, err := d.TemperatureMilliC(); !errors.Is(err, errFakeBus) {
		t.Fatalf("error = %v", err)
	}
}

func TestTemperatureLimits(t *testing.T) {
	f := newFakeChip()
	d := newTestDevice(f, VariantISL12020M)
	lcrit, min, max, crit := d.TemperatureLimitsMilliC()
	if lcrit != -50000 || min != -40000 || max != 85000 || crit != 90000 {
		t.Fatalf("module variant limits = %d %d %d %d", lcrit, min, max, crit)
	}

	d2 := newTestDevice(f, VariantISL12020)
	lcrit, min, max, crit = d2.TemperatureLimitsMilliC()
	if lcrit != -40000 || min != -20000 || max != 75000 || crit != 85000 {
		t.Fatalf("base variant limits = %d %d %d %d", lcrit, min, max, crit)
	}
}
