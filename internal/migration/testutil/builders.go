package testutil

import (
	"fmt"
	"time"
)

// LegacyUser is a row of auth_user.
type LegacyUser struct {
	ID         int64
	Username   string
	Email      string
	FirstName  string
	LastName   string
	IsActive   bool
	IsStaff    bool
	DateJoined time.Time
}

// LegacyDoctor is a row of dispatch_doctor.
type LegacyDoctor struct {
	ID            int64
	UserID        int64
	Specialty     string
	LicenseNumber *string
	Phone         *string
	CreatedAt     time.Time
}

// LegacyPatient is a row of dispatch_patient.
type LegacyPatient struct {
	ID        int64
	DoctorID  *int64
	FirstName string
	LastName  string
	BirthDate *string
	Email     *string
	Phone     *string
	CreatedAt time.Time
}

// LegacyOrder is a row of dispatch_order.
type LegacyOrder struct {
	ID        int64
	PatientID int64
	DoctorID  *int64
	Status    string
	Total     *float64
	Notes     *string
	CreatedAt time.Time
}

// LegacyContentType is a row of django_content_type.
type LegacyContentType struct {
	ID       int64
	AppLabel string
	Model    string
}

// LegacyComment is a row of dispatch_comment.
type LegacyComment struct {
	ID            int64
	UserID        int64
	ContentTypeID int64
	ObjectID      int64
	Body          string
	CreatedAt     time.Time
}

// baseTime is the creation time of generated rows; tests must not depend on the wall clock.
var baseTime = time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)

// Content type ids used by DefaultContentTypes.
const (
	ContentTypeOrder   int64 = 11
	ContentTypePatient int64 = 12
	ContentTypeDoctor  int64 = 13
)

// DefaultContentTypes returns the dispatch content types comments point at.
func DefaultContentTypes() []LegacyContentType {
	return []LegacyContentType{
		{ID: ContentTypeOrder, AppLabel: "dispatch", Model: "order"},
		{ID: ContentTypePatient, AppLabel: "dispatch", Model: "patient"},
		{ID: ContentTypeDoctor, AppLabel: "dispatch", Model: "doctor"},
	}
}

// UserBuilder provides a fluent API for building auth_user rows.
type UserBuilder struct {
	user LegacyUser
}

// NewUserBuilder creates a UserBuilder with sensible defaults.
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{user: LegacyUser{
		ID:         1,
		Username:   "jdoe",
		Email:      "J.Doe@Example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
		IsActive:   true,
		DateJoined: baseTime,
	}}
}

// WithID sets the ID and derives a unique username and e-mail from it.
func (b *UserBuilder) WithID(id int64) *UserBuilder {
	b.user.ID = id
	b.user.Username = fmt.Sprintf("user%d", id)
	b.user.Email = fmt.Sprintf("User%d@Example.com", id)
	return b
}

// WithEmail sets the e-mail address.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

// WithName sets first and last name.
func (b *UserBuilder) WithName(first, last string) *UserBuilder {
	b.user.FirstName = first
	b.user.LastName = last
	return b
}

// AsStaff marks the user as staff.
func (b *UserBuilder) AsStaff() *UserBuilder {
	b.user.IsStaff = true
	return b
}

// Inactive marks the user as deactivated.
func (b *UserBuilder) Inactive() *UserBuilder {
	b.user.IsActive = false
	return b
}

// Build returns the row.
func (b *UserBuilder) Build() LegacyUser {
	return b.user
}

// PatientBuilder provides a fluent API for building dispatch_patient rows.
type PatientBuilder struct {
	patient LegacyPatient
}

// NewPatientBuilder creates a PatientBuilder with sensible defaults.
func NewPatientBuilder() *PatientBuilder {
	birth := "1984-07-02"
	return &PatientBuilder{patient: LegacyPatient{
		ID:        1,
		FirstName: "Alex",
		LastName:  "Smith",
		BirthDate: &birth,
		CreatedAt: baseTime,
	}}
}

// WithID sets the ID.
func (b *PatientBuilder) WithID(id int64) *PatientBuilder {
	b.patient.ID = id
	return b
}

// WithDoctor sets the referenced legacy doctor id.
func (b *PatientBuilder) WithDoctor(doctorID int64) *PatientBuilder {
	b.patient.DoctorID = &doctorID
	return b
}

// WithEmail sets the e-mail address.
func (b *PatientBuilder) WithEmail(email string) *PatientBuilder {
	b.patient.Email = &email
	return b
}

// Build returns the row.
func (b *PatientBuilder) Build() LegacyPatient {
	return b.patient
}

// OrderBuilder provides a fluent API for building dispatch_order rows.
type OrderBuilder struct {
	order LegacyOrder
}

// NewOrderBuilder creates an OrderBuilder with sensible defaults.
func NewOrderBuilder() *OrderBuilder {
	total := 129.5
	return &OrderBuilder{order: LegacyOrder{
		ID:        1,
		PatientID: 1,
		Status:    "new",
		Total:     &total,
		CreatedAt: baseTime,
	}}
}

// WithID sets the ID.
func (b *OrderBuilder) WithID(id int64) *OrderBuilder {
	b.order.ID = id
	return b
}

// WithPatient sets the referenced legacy patient id.
func (b *OrderBuilder) WithPatient(patientID int64) *OrderBuilder {
	b.order.PatientID = patientID
	return b
}

// WithDoctor sets the referenced legacy doctor id.
func (b *OrderBuilder) WithDoctor(doctorID int64) *OrderBuilder {
	b.order.DoctorID = &doctorID
	return b
}

// WithStatus sets the legacy status code.
func (b *OrderBuilder) WithStatus(status string) *OrderBuilder {
	b.order.Status = status
	return b
}

// WithNotes sets free-text notes.
func (b *OrderBuilder) WithNotes(notes string) *OrderBuilder {
	b.order.Notes = &notes
	return b
}

// Build returns the row.
func (b *OrderBuilder) Build() LegacyOrder {
	return b.order
}

// GenerateUsers creates count users with ids 1..count.
func GenerateUsers(count int) []LegacyUser {
	users := make([]LegacyUser, count)
	for i := range count {
		users[i] = NewUserBuilder().WithID(int64(i + 1)).Build()
	}
	return users
}

// GenerateDoctors creates one doctor per user id given, with doctor ids 1..n.
func GenerateDoctors(userIDs ...int64) []LegacyDoctor {
	doctors := make([]LegacyDoctor, len(userIDs))
	for i, uid := range userIDs {
		license := fmt.Sprintf("LIC-%04d", i+1)
		doctors[i] = LegacyDoctor{
			ID:            int64(i + 1),
			UserID:        uid,
			Specialty:     "orthodontics",
			LicenseNumber: &license,
			CreatedAt:     baseTime,
		}
	}
	return doctors
}

// GeneratePatients creates count patients with ids 1..count, all treated by doctorID.
func GeneratePatients(count int, doctorID int64) []LegacyPatient {
	patients := make([]LegacyPatient, count)
	for i := range count {
		patients[i] = NewPatientBuilder().WithID(int64(i + 1)).WithDoctor(doctorID).Build()
	}
	return patients
}
