package domain

// Company is the owner of a COMPANY treasury. Companies are managed elsewhere
// in the ERP; the treasury engine only resolves them.
type Company struct {
	ID       string
	Name     string
	IsActive bool
}
