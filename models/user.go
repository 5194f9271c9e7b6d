package models

// UserRole — роль пользователя из JWT-клейма. Сами пользователи живут во
// внешнем сервисе; здесь роль нужна только для авторизации маршрутов.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)
