package http

import "net/http"

// sampleRadioStatus is a trimmed reply of a real gateway.
const sampleRadioStatus = `{
  "cell_CA_stats_cfg": [{
    "X_ALU_COM_DLCarrierAggregationNumberOfEntries": 1,
    "X_ALU_COM_ULCarrierAggregationNumberOfEntries": 0,
    "ca4GDL": {"1": {"PhysicalCellID": 310, "ScellBand": "B66", "ScellChannel": 66786}},
    "ca4GUL": {}
  }],
  "cell_5G_stats_cfg": [{"stat": {
    "SNRCurrent": 12, "RSRPCurrent": -95, "RSRPStrengthIndexCurrent": 3,
    "PhysicalCellID": "521", "RSRQCurrent": -11, "Downlink_NR_ARFCN": 520110,
    "SignalStrengthLevel": 3, "Band": "n41"
  }}],
  "cell_LTE_stats_cfg": [{"stat": {
    "RSSICurrent": -70, "SNRCurrent": 9, "RSRPCurrent": -101, "RSRPStrengthIndexCurrent": 2,
    "PhysicalCellID": "310", "RSRQCurrent": -12, "DownlinkEarfcn": 66786,
    "SignalStrengthLevel": 2, "Band": "B2"
  }}]
}
`

// RadioStatus handles GET /fastmile_radio_status_web_app.cgi with a fixed sample.
func RadioStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(sampleRadioStatus))
}
