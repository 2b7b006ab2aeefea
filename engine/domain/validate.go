package domain

import "fmt"

// ValidateTask checks a symptom-log entry before it enters the pipeline.
func ValidateTask(t HealthTask) error {
	if t.Symptom == "" {
		return NewValidationError("symptom", t.Symptom, ErrEmptySymptom)
	}
	if t.Severity < 1 || t.Severity > 5 {
		return NewValidationError("severity", fmt.Sprintf("%d", t.Severity), ErrInvalidSeverity)
	}
	return nil
}

// ValidateProfile checks a user profile supplied by the caller.
func ValidateProfile(p UserProfile) error {
	if p.Age < 0 || p.Age > 150 {
		return NewValidationError("age", fmt.Sprintf("%d", p.Age), ErrInvalidAge)
	}
	return nil
}

// ValidateLocation checks capture coordinates.
func ValidateLocation(l LocationData) error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return NewValidationError("latitude", fmt.Sprintf("%g", l.Latitude), ErrInvalidLatitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return NewValidationError("longitude", fmt.Sprintf("%g", l.Longitude), ErrInvalidLongitude)
	}
	return nil
}

// ValidateUrgency checks that a string names a recognised urgency level.
func ValidateUrgency(u Urgency) error {
	if !ValidUrgencies[u] {
		return NewValidationError("urgency", string(u), ErrInvalidUrgency)
	}
	return nil
}
