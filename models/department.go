package models

// Department is the municipal unit an issue is routed to.
type Department string

const (
	PublicWorks     Department = "Public Works"
	Electrical      Department = "Electrical"
	Sanitation      Department = "Sanitation"
	WaterWorks      Department = "Water Works"
	GeneralServices Department = "General Services"
)

// categoryDepartments is the fixed routing table. It is a closed mapping;
// anything outside it falls back to General Services.
var categoryDepartments = map[IssueCategory]Department{
	Pothole:     PublicWorks,
	Streetlight: Electrical,
	Trash:       Sanitation,
	Water:       WaterWorks,
	Sewage:      WaterWorks,
	Other:       GeneralServices,
}

// DepartmentFor returns the department responsible for a category.
func DepartmentFor(category IssueCategory) Department {
	if d, ok := categoryDepartments[category]; ok {
		return d
	}
	return GeneralServices
}
