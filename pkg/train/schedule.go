package train

// Step of a learning rate schedule: Rate is used for Sweeps epochs, after which the next
// step takes over. The last step is used forever, regardless of its Sweeps.
type Step struct {
	Sweeps int     `yaml:"sweeps"`
	Rate   float64 `yaml:"rate"`
}

// Schedule is a piecewise constant learning rate per epoch
type Schedule []Step

// DefaultSchedule is 0.01 for 10 epochs, 0.003 for 10 epochs, and 0.001 thereafter
func DefaultSchedule() Schedule {
	return Schedule{
		{Sweeps: 10, Rate: 0.01},
		{Sweeps: 10, Rate: 0.003},
		{Sweeps: 1, Rate: 0.001},
	}
}

// Rate returns the learning rate of the given (zero based) epoch
func (s Schedule) Rate(epoch int) float64 {
	if len(s) == 0 {
		return 0
	}
	end := 0
	for _, step := range s {
		end += step.Sweeps
		if epoch < end {
			return step.Rate
		}
	}
	return s[len(s)-1].Rate
}
