package receipt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"

	"github.com/neemapp/chanda-gateway/internal/model"
	qrcode "github.com/skip2/go-qrcode"
)

const receiptTemplateHTML = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Donation Receipt</title>
    <style>
      body {
        font-family: 'Arial', sans-serif;
        margin: 0;
        padding: 20px;
        background-color: #f5f5f5;
      }
      .receipt {
        background: white;
        max-width: 400px;
        margin: 0 auto;
        padding: 30px;
        border-radius: 12px;
        box-shadow: 0 4px 12px rgba(0,0,0,0.1);
        border: 2px solid #FF6B35;
      }
      .header {
        text-align: center;
        border-bottom: 3px solid #FF6B35;
        padding-bottom: 20px;
        margin-bottom: 25px;
      }
      .mandal-name {
        font-size: 24px;
        font-weight: bold;
        color: #FF6B35;
        margin-bottom: 8px;
        text-transform: uppercase;
      }
      .festival-name {
        font-size: 18px;
        font-weight: 600;
        color: #333;
        margin-bottom: 10px;
        background: #FF6B3515;
        padding: 8px 16px;
        border-radius: 20px;
        display: inline-block;
      }
      .receipt-title {
        font-size: 16px;
        color: #666;
        margin-bottom: 10px;
      }
      .receipt-id {
        font-size: 12px;
        color: #999;
        font-family: monospace;
        background: #f0f0f0;
        padding: 4px 8px;
        border-radius: 4px;
      }
      .details {
        margin: 25px 0;
      }
      .detail-row {
        display: flex;
        justify-content: space-between;
        margin: 15px 0;
        padding: 12px 0;
        border-bottom: 2px dotted #ddd;
      }
      .detail-label {
        font-weight: 700;
        color: #333;
        font-size: 16px;
      }
      .detail-value {
        color: #666;
        text-align: right;
        font-size: 16px;
      }
      .amount {
        font-size: 28px;
        font-weight: bold;
        color: #FF6B35;
      }
      .qr {
        text-align: center;
        margin-top: 20px;
      }
      .qr img {
        width: 96px;
        height: 96px;
      }
      .footer {
        text-align: center;
        margin-top: 30px;
        padding-top: 20px;
        border-top: 3px solid #FF6B35;
        color: #666;
        font-size: 14px;
        line-height: 1.6;
      }
      .thank-you {
        font-weight: 700;
        color: #FF6B35;
        margin-bottom: 12px;
        font-size: 18px;
      }
      .blessing {
        font-size: 16px;
        color: #333;
        margin: 8px 0;
      }
      .app-footer {
        font-size: 12px;
        color: #999;
        margin-top: 15px;
        font-style: italic;
      }
    </style>
  </head>
  <body>
    <div class="receipt">
      <div class="header">
        <div class="mandal-name">{{.Donation.MandalName}}</div>
        <div class="festival-name">Festival: {{.Donation.FestivalName}}</div>
        <div class="receipt-title">Donation Receipt</div>
        <div class="receipt-id">Receipt ID: {{.Donation.ReceiptID}}</div>
      </div>

      <div class="details">
        <div class="detail-row">
          <span class="detail-label">Donor Name:</span>
          <span class="detail-value">{{.Donation.DonorName}}</span>
        </div>
        <div class="detail-row">
          <span class="detail-label">Amount Donated:</span>
          <span class="detail-value amount">&#8377; {{.Amount}}</span>
        </div>
        <div class="detail-row">
          <span class="detail-label">Date &amp; Time:</span>
          <span class="detail-value">{{.Date}}, {{.Time}}</span>
        </div>
        <div class="detail-row">
          <span class="detail-label">Contact:</span>
          <span class="detail-value">{{.Donation.MobileNumber}}</span>
        </div>
        {{if .Donation.Email}}
        <div class="detail-row">
          <span class="detail-label">Email:</span>
          <span class="detail-value">{{.Donation.Email}}</span>
        </div>
        {{end}}
      </div>

      {{if .QRCode}}
      <div class="qr">
        <img src="{{.QRCode}}" alt="Receipt QR">
      </div>
      {{end}}

      <div class="footer">
        <div class="thank-you">&#128591; Thank you for your generous contribution &#128591;</div>
        <div class="blessing">towards {{.Donation.FestivalName}}.</div>
        <div class="blessing">May the divine bless you and your family!</div>
        <div class="app-footer">Issued by Neem &ndash; Smart Chanda Collection App</div>
      </div>
    </div>
  </body>
</html>
`

var receiptTemplate = template.Must(template.New("receipt").Parse(receiptTemplateHTML))

type receiptData struct {
	Donation *model.Donation
	Amount   string
	Date     string
	Time     string
	QRCode   template.URL
}

// RenderHTML produces the self-contained receipt document for one donation.
// The email row is omitted when the donor gave no email. Stored date and time
// are reformatted for display only.
func RenderHTML(d *model.Donation) (string, error) {
	var qr template.URL
	if png, err := qrcode.Encode(d.ReceiptID, qrcode.Medium, 256); err == nil {
		qr = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	}

	var buf bytes.Buffer
	err := receiptTemplate.Execute(&buf, receiptData{
		Donation: d,
		Amount:   FormatAmount(d.Amount),
		Date:     FormatDisplayDate(d.DonationDate),
		Time:     FormatDisplayTime(d.DonationTime),
		QRCode:   qr,
	})
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}

// SMSText is the plain-text thank-you sent to the donor's mobile.
func SMSText(d *model.Donation) string {
	return fmt.Sprintf("🙏 Thank you for your donation of ₹%s to %s for %s! Receipt ID: %s. May the divine bless you!",
		FormatAmount(d.Amount), d.MandalName, d.FestivalName, d.ReceiptID)
}

// EmailSubject and EmailBody make up the mail-compose variant of the receipt.
func EmailSubject(d *model.Donation) string {
	return fmt.Sprintf("Donation Receipt - %s - %s", d.MandalName, d.FestivalName)
}

func EmailBody(d *model.Donation) string {
	return fmt.Sprintf("Dear %s,\n\nThank you for your generous donation of ₹%s to %s for %s.\n\nYour receipt is attached to this email.\n\nReceipt ID: %s\n\nMay the divine bless you and your family!\n\n🙏 With gratitude 🙏",
		d.DonorName, FormatAmount(d.Amount), d.MandalName, d.FestivalName, d.ReceiptID)
}
