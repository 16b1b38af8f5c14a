package train

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotHistory draws the loss and classification error of every training minibatch
func PlotHistory(history []BatchStats, filename string) error {
	p := plot.New()
	p.Title.Text = "Minibatch run vs. training loss"
	p.X.Label.Text = "Minibatch number"
	p.Y.Label.Text = "Loss / error"

	loss := make(plotter.XYs, len(history))
	errs := make(plotter.XYs, len(history))
	for i, h := range history {
		loss[i].X = float64(h.Index)
		loss[i].Y = h.Loss
		errs[i].X = float64(h.Index)
		errs[i].Y = h.Error
	}
	if err := plotutil.AddLines(p, "loss", loss, "error", errs); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, filename)
}
