package main

import (
	"errors"
	"sync"
	"time"
)

// Register map of the simulated part.
const (
	simRegSeconds = 0x00
	simRegStatus  = 0x07
	simRegCSRInt  = 0x08
	simRegBeta    = 0x0D
	simRegTempL   = 0x28
	simRegTempH   = 0x29

	simBitWRTC = 0x40 // CSR/INT write-enable gate
)

// simChip emulates the register file of an ISL12020M behind the two-wire
// protocol the driver speaks: a one-byte register pointer write followed by
// either a read burst or inline data bytes.
//
// The calendar registers are not stored; they are derived from the host
// wall clock plus an offset, so the simulated clock keeps ticking between
// transactions. Writing the time block moves the offset. The temperature
// code wanders slowly around a midpoint to make periodic sampling visible.
type simChip struct {
	mu     sync.Mutex
	regs   [0x30]byte
	offset time.Duration

	tempMC   int64 // current die temperature, milli-degrees C
	tempStep int64
}

func newSimChip() *simChip {
	return &simChip{tempMC: 25_000, tempStep: 125}
}

func (c *simChip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(w) == 0 {
		return errors.New("simchip: empty write")
	}
	reg := w[0]

	if len(w) == 1 && len(r) > 0 {
		c.refresh()
		for i := range r {
			p := int(reg) + i
			if p >= len(c.regs) {
				return errors.New("simchip: read past register file")
			}
			r[i] = c.regs[p]
		}
		return nil
	}

	data := w[1:]
	// Time block writes are gated on WRTC, like the real part.
	if reg == simRegSeconds && len(data) == 7 {
		if c.regs[simRegCSRInt]&simBitWRTC == 0 {
			return nil
		}
		c.setClock(data)
		return nil
	}
	for i, b := range data {
		p := int(reg) + i
		if p >= len(c.regs) {
			return errors.New("simchip: write past register file")
		}
		c.regs[p] = b
	}
	return nil
}

// refresh recomputes the derived registers before a read burst.
func (c *simChip) refresh() {
	now := time.Now().UTC().Add(c.offset)
	c.regs[0x00] = bin2bcd(now.Second())
	c.regs[0x01] = bin2bcd(now.Minute())
	c.regs[0x02] = bin2bcd(now.Hour()) | 0x80 // 24 h mode
	c.regs[0x03] = bin2bcd(now.Day())
	c.regs[0x04] = bin2bcd(int(now.Month()))
	c.regs[0x05] = bin2bcd(now.Year() % 100)
	c.regs[0x06] = byte(now.Weekday())

	// Wander between 24 and 26 degrees, module-variant coding.
	c.tempMC += c.tempStep
	if c.tempMC >= 26_000 || c.tempMC <= 24_000 {
		c.tempStep = -c.tempStep
	}
	raw := uint16((c.tempMC + 273_000) / 500)
	c.regs[simRegTempL] = byte(raw)
	c.regs[simRegTempH] = byte(raw>>8) & 0x03
}

func (c *simChip) setClock(block []byte) {
	sec := bcd2bin(block[0] & 0x7F)
	min := bcd2bin(block[1] & 0x7F)
	hour := bcd2bin(block[2] & 0x3F)
	day := bcd2bin(block[3] & 0x3F)
	month := bcd2bin(block[4] & 0x1F)
	year := 2000 + bcd2bin(block[5])

	want := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	c.offset = want.Sub(time.Now().UTC())
}

func bin2bcd(v int) byte { return byte(v/10<<4 | v%10) }
func bcd2bin(b byte) int { return int(b>>4)*10 + int(b&0x0F) }
