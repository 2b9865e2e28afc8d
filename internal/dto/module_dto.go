package dto

// ModuleCreateRequest appends a module to a class.
type ModuleCreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=10000"`
	SlideURL    string `json:"slide_url" validate:"omitempty,url"`
	Content     string `json:"content"`
}

// ModuleUpdateRequest patches a module.
type ModuleUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
	SlideURL    *string `json:"slide_url" validate:"omitempty,url"`
	Content     *string `json:"content"`
}

// ModuleMoveRequest swaps a module with its neighbour.
type ModuleMoveRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// ModuleReorderRequest renumbers every module of a class in the given sequence.
type ModuleReorderRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,required"`
}

// ModuleResourcesRequest replaces the set of resources attached to a module.
type ModuleResourcesRequest struct {
	ResourceIDs []string `json:"resource_ids" validate:"dive,required"`
}
