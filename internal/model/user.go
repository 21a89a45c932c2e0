package model

// UserRole 由请求层鉴权后传入，账号体系不在本服务内维护
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case Student, Teacher, Admin:
		return true
	}
	return false
}

// CanGrade 教师与管理员可以参与人工阅卷
func (r UserRole) CanGrade() bool {
	return r == Teacher || r == Admin
}
