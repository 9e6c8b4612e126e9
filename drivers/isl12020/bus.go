package isl12020

// I2C byte and block operations. Registers are 8-bit wide and byte-addressed;
// multi-byte transfers auto-increment inside one transaction.

func (d *Device) readReg(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) writeReg(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.i2c.Tx(d.addr, d.w[:2], nil)
}

func (d *Device) readBlock(reg byte, buf []byte) error {
	d.w[0] = reg
	return d.i2c.Tx(d.addr, d.w[:1], buf)
}

func (d *Device) writeBlock(reg byte, data []byte) error {
	d.w[0] = reg
	n := copy(d.w[1:], data)
	return d.i2c.Tx(d.addr, d.w[:1+n], nil)
}

// updateBits performs a read-modify-write of one register, replacing only the
// masked bits. The whole register is always rewritten so that sibling bits
// survive concurrent-looking sequences at the protocol level.
func (d *Device) updateBits(reg, mask, val byte) error {
	cur, err := d.readReg(reg)
	if err != nil {
		return err
	}
	return d.writeReg(reg, (cur&^mask)|(val&mask))
}
