package fixtures

import (
	"time"

	"github.com/neemapp/chanda-gateway/internal/model"
)

func NewTestDonation(donorName string, amount float64, festival string) *model.Donation {
	return &model.Donation{
		ID:           0,
		MandalName:   "Shree Ganesh Mandal",
		DonorName:    donorName,
		Amount:       amount,
		MobileNumber: "9876543210",
		DonationDate: "2024-09-07",
		DonationTime: "10:30:00",
		ReceiptID:    "NMTEST0000001",
		FestivalName: festival,
		CreatedAt:    time.Now(),
	}
}

func NewTestDonationCreateRequest(donorName string, amount float64, mobile string) model.DonationCreateRequest {
	return model.DonationCreateRequest{
		DonorName:    donorName,
		Amount:       amount,
		MobileNumber: mobile,
		FestivalName: "Ganpati Festival",
	}
}

func NewTestDeliveryJob(donationID int64, receiptID string, channels ...model.DeliveryChannel) model.DeliveryJob {
	return model.DeliveryJob{
		DonationID: donationID,
		ReceiptID:  receiptID,
		Channels:   channels,
	}
}

var (
	ValidMobileNumbers = []string{
		"9876543210",
		"8000000001",
		"7123456789",
	}

	InvalidMobileNumbers = []string{
		"",
		"123",
		"invalid",
		"98765432101",
		"987654321a",
	}

	ValidEmails = []string{
		"donor@example.com",
		"ram.sharma@mandal.org",
	}

	InvalidEmails = []string{
		"not-an-email",
		"@example.com",
		"donor@",
	}
)

func DonationCreateRequestValid() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Ram Sharma", 501, "9876543210")
}

func DonationCreateRequestWithEmail() model.DonationCreateRequest {
	req := DonationCreateRequestValid()
	req.Email = "ram.sharma@mandal.org"
	return req
}

func DonationCreateRequestMissingDonor() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("", 501, "9876543210")
}

func DonationCreateRequestInvalidMobile() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Ram Sharma", 501, "123")
}

func DonationCreateRequestZeroAmount() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Ram Sharma", 0, "9876543210")
}
