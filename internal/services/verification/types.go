package verification

// PropertyDetails is the editable property record extracted from a
// deal's offering memo.
type PropertyDetails struct {
	PropertyName      string  `json:"property_name,omitempty"`
	Address           string  `json:"address,omitempty"`
	City              string  `json:"city,omitempty"`
	State             string  `json:"state,omitempty"`
	ZipCode           string  `json:"zip_code,omitempty"`
	NumberOfUnits     int     `json:"number_of_units,omitempty"`
	YearBuilt         int     `json:"year_built,omitempty"`
	ParkingSpaces     int     `json:"parking_spaces,omitempty"`
	GrossSquareFeet   int     `json:"gross_square_feet,omitempty"`
	AskingPrice       float64 `json:"asking_price,omitempty"`
	Description       string  `json:"description,omitempty"`
	MarketDescription string  `json:"market_description,omitempty"`
}

// PropertyDetailsPatch carries only the fields the user changed. Nil
// fields are left untouched by a merge.
type PropertyDetailsPatch struct {
	PropertyName      *string  `json:"property_name,omitempty"`
	Address           *string  `json:"address,omitempty"`
	City              *string  `json:"city,omitempty"`
	State             *string  `json:"state,omitempty"`
	ZipCode           *string  `json:"zip_code,omitempty"`
	NumberOfUnits     *int     `json:"number_of_units,omitempty"`
	YearBuilt         *int     `json:"year_built,omitempty"`
	ParkingSpaces     *int     `json:"parking_spaces,omitempty"`
	GrossSquareFeet   *int     `json:"gross_square_feet,omitempty"`
	AskingPrice       *float64 `json:"asking_price,omitempty"`
	Description       *string  `json:"description,omitempty"`
	MarketDescription *string  `json:"market_description,omitempty"`
}

// IsZero reports whether the patch changes nothing
func (p *PropertyDetailsPatch) IsZero() bool {
	return p.PropertyName == nil && p.Address == nil && p.City == nil &&
		p.State == nil && p.ZipCode == nil && p.NumberOfUnits == nil &&
		p.YearBuilt == nil && p.ParkingSpaces == nil && p.GrossSquareFeet == nil &&
		p.AskingPrice == nil && p.Description == nil && p.MarketDescription == nil
}

// applyTo merges the patch's non-nil fields into the details
func (p *PropertyDetailsPatch) applyTo(d *PropertyDetails) {
	if p.PropertyName != nil {
		d.PropertyName = *p.PropertyName
	}
	if p.Address != nil {
		d.Address = *p.Address
	}
	if p.City != nil {
		d.City = *p.City
	}
	if p.State != nil {
		d.State = *p.State
	}
	if p.ZipCode != nil {
		d.ZipCode = *p.ZipCode
	}
	if p.NumberOfUnits != nil {
		d.NumberOfUnits = *p.NumberOfUnits
	}
	if p.YearBuilt != nil {
		d.YearBuilt = *p.YearBuilt
	}
	if p.ParkingSpaces != nil {
		d.ParkingSpaces = *p.ParkingSpaces
	}
	if p.GrossSquareFeet != nil {
		d.GrossSquareFeet = *p.GrossSquareFeet
	}
	if p.AskingPrice != nil {
		d.AskingPrice = *p.AskingPrice
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.MarketDescription != nil {
		d.MarketDescription = *p.MarketDescription
	}
}

// mergeFrom folds another patch into this one, later fields winning
func (p *PropertyDetailsPatch) mergeFrom(other *PropertyDetailsPatch) {
	if other.PropertyName != nil {
		p.PropertyName = other.PropertyName
	}
	if other.Address != nil {
		p.Address = other.Address
	}
	if other.City != nil {
		p.City = other.City
	}
	if other.State != nil {
		p.State = other.State
	}
	if other.ZipCode != nil {
		p.ZipCode = other.ZipCode
	}
	if other.NumberOfUnits != nil {
		p.NumberOfUnits = other.NumberOfUnits
	}
	if other.YearBuilt != nil {
		p.YearBuilt = other.YearBuilt
	}
	if other.ParkingSpaces != nil {
		p.ParkingSpaces = other.ParkingSpaces
	}
	if other.GrossSquareFeet != nil {
		p.GrossSquareFeet = other.GrossSquareFeet
	}
	if other.AskingPrice != nil {
		p.AskingPrice = other.AskingPrice
	}
	if other.Description != nil {
		p.Description = other.Description
	}
	if other.MarketDescription != nil {
		p.MarketDescription = other.MarketDescription
	}
}

// RentRollRow is one unit row of the extracted rent roll
type RentRollRow struct {
	Unit        string  `json:"unit"`
	UnitType    string  `json:"unit_type,omitempty"`
	SquareFeet  float64 `json:"square_feet,omitempty"`
	CurrentRent float64 `json:"current_rent,omitempty"`
	MarketRent  float64 `json:"market_rent,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// T12Row is one line item of the extracted trailing-12 statement
type T12Row struct {
	LineItem string  `json:"line_item"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category,omitempty"`
}

// DocumentURLs are the signed, time-limited URLs for a deal's source
// documents, as returned with a draft.
type DocumentURLs struct {
	OMFileURL       string `json:"om_file_url,omitempty"`
	RentRollFileURL string `json:"rent_roll_file_url,omitempty"`
	T12FileURL      string `json:"t12_file_url,omitempty"`
	ExcelFileURL    string `json:"excel_file_url,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// DraftResponse is the backend's draft for one deal: flat property
// fields plus the extracted tables and signed document URLs.
type DraftResponse struct {
	ID string `json:"id"`
	PropertyDetails
	RentRoll []RentRollRow `json:"rent_roll"`
	T12      []T12Row      `json:"t12"`
	Status   string        `json:"status,omitempty"`
	DocumentURLs
}

// UpdateDealRequest is the body for PUT /api/v1/deals/{deal_id}. Only
// changed fields are sent; nil means "leave as is".
type UpdateDealRequest struct {
	PropertyDetailsPatch
	RentRoll *[]RentRollRow `json:"rent_roll,omitempty"`
	T12      *[]T12Row      `json:"t12,omitempty"`
}

// VerificationState is the merged view the editing surfaces render:
// the server draft with local edits applied on top.
type VerificationState struct {
	DealID            string          `json:"deal_id"`
	PropertyDetails   PropertyDetails `json:"property_details"`
	RentRoll          []RentRollRow   `json:"rent_roll"`
	T12               []T12Row        `json:"t12"`
	Status            string          `json:"status,omitempty"`
	HasUnsavedChanges bool            `json:"has_unsaved_changes"`
}

// DealSummary is one row of the deal pipeline listing
type DealSummary struct {
	ID            string  `json:"id"`
	PropertyName  string  `json:"property_name,omitempty"`
	Address       string  `json:"address,omitempty"`
	City          string  `json:"city,omitempty"`
	State         string  `json:"state,omitempty"`
	NumberOfUnits int     `json:"number_of_units,omitempty"`
	AskingPrice   float64 `json:"asking_price,omitempty"`
	Status        string  `json:"status,omitempty"`
}
