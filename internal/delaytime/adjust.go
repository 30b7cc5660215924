package delaytime

import (
	"time"

	"github.com/sunjingtao1119/GISMO/internal/waveform"
)

// AdjustTriggers applies the fitted delay corrections to the trigger vector:
// newTrigger[i] = trigger[i] + delay[i] seconds. The function is pure: it
// returns a fresh vector and never touches sample data. Re-cropping or
// re-aligning waveform content around the new triggers is a collaborator's
// responsibility.
func AdjustTriggers(triggers []time.Time, delays []float64) ([]time.Time, error) {
	if len(triggers) != len(delays) {
		return nil, &waveform.InputError{
			Reason: "adjust: trigger and delay vectors have different lengths"}
	}
	out := make([]time.Time, len(triggers))
	for i, trig := range triggers {
		out[i] = trig.Add(time.Duration(delays[i] * float64(time.Second)))
	}
	return out, nil
}
