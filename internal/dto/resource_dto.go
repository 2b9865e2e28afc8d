package dto

// ResourceCreateRequest registers a link or uploaded file.
type ResourceCreateRequest struct {
	Title       string  `json:"title" form:"title" validate:"required,min=1,max=255"`
	Kind        string  `json:"kind" form:"kind" validate:"omitempty,oneof=pdf word excel video link"`
	URL         string  `json:"url" form:"url" validate:"omitempty,url"`
	Description string  `json:"description" form:"description" validate:"max=5000"`
	ModuleID    *string `json:"module_id" form:"module_id"`
}

// ResourceUpdateRequest patches a resource.
type ResourceUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Kind        *string `json:"kind" validate:"omitempty,oneof=pdf word excel video link"`
	URL         *string `json:"url" validate:"omitempty,url"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}
