package storetest

// Item - простая сущность для тестов
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i Item) GetID() string {
	return i.ID
}
