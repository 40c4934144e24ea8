package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/neemapp/chanda-gateway/internal/model"
)

const reportTemplateHTML = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Donation Report</title>
    <style>
      body {
        font-family: 'Arial', sans-serif;
        margin: 0;
        padding: 24px;
        color: #333;
      }
      h1 {
        color: #FF6B35;
        margin-bottom: 4px;
      }
      .generated {
        color: #999;
        font-size: 12px;
        margin-bottom: 20px;
      }
      .summary {
        display: flex;
        gap: 24px;
        margin-bottom: 24px;
      }
      .summary-item {
        background: #FFF4EF;
        border: 1px solid #FF6B35;
        border-radius: 8px;
        padding: 12px 20px;
        text-align: center;
      }
      .summary-value {
        font-size: 22px;
        font-weight: bold;
        color: #FF6B35;
      }
      .summary-label {
        font-size: 12px;
        color: #666;
      }
      table {
        width: 100%;
        border-collapse: collapse;
      }
      th {
        background: #FF6B35;
        color: white;
        padding: 8px 12px;
        text-align: left;
      }
      td {
        padding: 8px 12px;
        border-bottom: 1px solid #eee;
      }
    </style>
  </head>
  <body>
    <h1>Donation Report</h1>
    <div class="generated">Generated on {{.GeneratedAt}}</div>

    <div class="summary">
      <div class="summary-item">
        <div class="summary-value">{{.Stats.Count}}</div>
        <div class="summary-label">Total Donations</div>
      </div>
      <div class="summary-item">
        <div class="summary-value">&#8377;{{.Total}}</div>
        <div class="summary-label">Total Amount</div>
      </div>
      <div class="summary-item">
        <div class="summary-value">&#8377;{{.Average}}</div>
        <div class="summary-label">Average Donation</div>
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th>Donor Name</th>
          <th>Amount</th>
          <th>Date</th>
          <th>Time</th>
          <th>Festival</th>
          <th>Receipt ID</th>
        </tr>
      </thead>
      <tbody>
        {{range .Rows}}
        <tr>
          <td>{{.DonorName}}</td>
          <td>&#8377;{{.Amount}}</td>
          <td>{{.Date}}</td>
          <td>{{.Time}}</td>
          <td>{{.Festival}}</td>
          <td>{{.ReceiptID}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </body>
</html>
`

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateHTML))

type reportRow struct {
	DonorName string
	Amount    string
	Date      string
	Time      string
	Festival  string
	ReceiptID string
}

type reportData struct {
	GeneratedAt string
	Stats       model.DonationStats
	Total       string
	Average     string
	Rows        []reportRow
}

// Summarize computes the aggregate view over a set of donations. The average
// is the rounded mean, reported as zero when there are no donations rather
// than propagating a division by zero.
func Summarize(donations []*model.Donation) model.DonationStats {
	stats := model.DonationStats{Count: int64(len(donations))}
	for _, d := range donations {
		stats.TotalAmount += d.Amount
	}
	if stats.Count > 0 {
		stats.AverageAmount = RoundAverage(stats.TotalAmount, stats.Count)
	}
	return stats
}

// RoundAverage is the mean rounded to the nearest rupee.
func RoundAverage(total float64, count int64) float64 {
	return math.Round(total / float64(count))
}

// RenderReport produces the tabular export document over the supplied
// donations, echoing the per-record display formatting of the receipt.
func RenderReport(donations []*model.Donation, now time.Time) (string, error) {
	stats := Summarize(donations)

	rows := make([]reportRow, len(donations))
	for i, d := range donations {
		rows[i] = reportRow{
			DonorName: d.DonorName,
			Amount:    FormatAmount(d.Amount),
			Date:      FormatDisplayDate(d.DonationDate),
			Time:      FormatDisplayTime(d.DonationTime),
			Festival:  d.FestivalName,
			ReceiptID: d.ReceiptID,
		}
	}

	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, reportData{
		GeneratedAt: now.Format("02 Jan 2006, 3:04 PM"),
		Stats:       stats,
		Total:       FormatAmount(stats.TotalAmount),
		Average:     FormatAmount(stats.AverageAmount),
		Rows:        rows,
	})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
