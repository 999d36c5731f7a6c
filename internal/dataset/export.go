package dataset

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

var (
	summaryHeader = []string{"Total_Distance_m", "Total_Time_s", "Total_Load", "Objective_Value", "Vehicle_Count", "Vehicle_Capacity"}
	routesHeader  = []string{"Vehicle_ID", "Route_Distance_m", "Route_Time_s", "Route_Load", "Stop_Order", "Location_Name", "Location_Type", "Load", "Cumulative_Load"}
)

// WriteSummaryCSV writes the one-row optimization_summary.csv layout with a
// UTF-8 BOM so spreadsheet tools pick the right encoding.
func WriteSummaryCSV(w io.Writer, res vrp.RunResult, vehicleCapacity int) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	if err := cw.Write([]string{
		formatFloat(res.TotalDistance),
		formatFloat(res.TotalTime),
		strconv.Itoa(res.TotalLoad),
		strconv.FormatInt(res.ObjectiveValue, 10),
		strconv.Itoa(res.VehicleCount),
		strconv.Itoa(vehicleCapacity),
	}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteRoutesCSV writes one row per waypoint. Route_Distance_m and
// Route_Time_s are cumulative at the waypoint; Load is the stop's own demand.
func WriteRoutesCSV(w io.Writer, res vrp.RunResult) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(routesHeader); err != nil {
		return err
	}
	for _, r := range res.Routes {
		prev := 0
		for i, wp := range r.Waypoints {
			delta := 0
			if wp.Role != vrp.RoleDepot && wp.Load > prev {
				delta = wp.Load - prev
			}
			prev = wp.Load
			if err := cw.Write([]string{
				strconv.Itoa(r.VehicleID + 1),
				formatFloat(wp.CumulativeDistance),
				formatFloat(wp.CumulativeTime),
				strconv.Itoa(r.Load),
				strconv.Itoa(i + 1),
				wp.Name,
				string(wp.Role),
				strconv.Itoa(delta),
				strconv.Itoa(wp.Load),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
