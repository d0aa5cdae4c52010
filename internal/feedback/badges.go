package feedback

// CategoryBadgeClass returns the badge style for a category.
func CategoryBadgeClass(c Category) string {
	switch c {
	case CategoryAcademics:
		return "bg-[#3498DB] text-white"
	case CategoryFacilities:
		return "bg-[#2ECC71] text-white"
	case CategoryInfirmary:
		return "bg-[#E74C3C] text-white"
	case CategoryCafeteria:
		return "bg-[#F39C12] text-white"
	case CategoryLibrary:
		return "bg-[#9B59B6] text-white"
	case CategoryDormitory:
		return "bg-[#1ABC9C] text-white"
	case CategoryEvents:
		return "bg-[#E91E63] text-white"
	case CategoryTransportation:
		return "bg-[#34495E] text-white"
	case CategoryTechnology:
		return "bg-[#607D8B] text-white"
	case CategoryAdministration:
		return "bg-[#795548] text-white"
	case CategorySafety:
		return "bg-[#C0392B] text-white"
	case CategoryOther:
		return "bg-[#95A5A6] text-white"
	default:
		return "bg-slate-500 text-white"
	}
}

// PriorityBadgeClass returns the badge style for a priority.
func PriorityBadgeClass(p Priority) string {
	switch p {
	case PriorityCritical:
		return "bg-[#E74C3C] text-white"
	case PriorityHigh:
		return "bg-[#F39C12] text-white"
	case PriorityMedium:
		return "bg-[#FFFF15] text-black"
	case PriorityLow:
		return "bg-[#1AAE5C] text-white"
	default:
		return "bg-slate-400 text-white"
	}
}

// CategoryHex is the chart colour used for a category in reports.
func CategoryHex(c Category) string {
	switch c {
	case CategoryAcademics:
		return "#3498DB"
	case CategoryFacilities:
		return "#2ECC71"
	case CategoryInfirmary:
		return "#E74C3C"
	case CategoryCafeteria:
		return "#F39C12"
	case CategoryLibrary:
		return "#9B59B6"
	case CategoryDormitory:
		return "#1ABC9C"
	case CategoryEvents:
		return "#E91E63"
	case CategoryTransportation:
		return "#34495E"
	case CategoryTechnology:
		return "#607D8B"
	case CategoryAdministration:
		return "#795548"
	case CategorySafety:
		return "#C0392B"
	case CategoryOther:
		return "#95A5A6"
	default:
		return "#64748B"
	}
}

// PriorityHex is the chart colour used for a priority in reports.
func PriorityHex(p Priority) string {
	switch p {
	case PriorityCritical:
		return "#E74C3C"
	case PriorityHigh:
		return "#F39C12"
	case PriorityMedium:
		return "#E6D800"
	case PriorityLow:
		return "#1AAE5C"
	default:
		return "#94A3B8"
	}
}
