// services/hal/devices/isl12020/builder.go
package isl12020dev

import (
	"time"

	"github.com/wgottwalt/isl12020m/errcode"
	"github.com/wgottwalt/isl12020m/services/hal"
	"github.com/wgottwalt/isl12020m/types"
)

func init() { hal.RegisterBuilder("isl12020", builder{}) }

type builder struct{}

// Build binds one ISL12020-family chip from config. A failed initial status
// read aborts the binding; startup configuration problems are warnings only.
func (builder) Build(in hal.BuildInput) (hal.BuildOutput, error) {
	if in.BusRef.Type != "i2c" || in.BusRef.ID == "" {
		return hal.BuildOutput{}, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: "isl12020 requires an i2c bus_ref"}
	}
	i2c, ok := in.Buses.ByID(in.BusRef.ID)
	if !ok {
		return hal.BuildOutput{}, &errcode.E{C: errcode.UnknownBus, Op: "build", Msg: in.BusRef.ID}
	}

	var p types.RTCParams
	if in.Params != nil {
		if err := hal.DecodeParams(in.Params, &p); err != nil {
			return hal.BuildOutput{}, &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: err.Error()}
		}
	}

	ad, warnings, err := hal.NewISL12020Adaptor(in.DeviceID, i2c, in.BusRef.ID, p)
	if err != nil {
		return hal.BuildOutput{}, err
	}

	out := hal.BuildOutput{
		Adaptor:  ad,
		BusID:    in.BusRef.ID,
		Warnings: warnings,
	}
	// Periodic temperature sampling only makes sense with sensing on.
	if p.TemperatureSensorEnable {
		out.SampleEvery = 10 * time.Second
	}
	return out, nil
}
