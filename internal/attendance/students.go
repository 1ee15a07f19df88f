package attendance

import (
	"context"

	"presence/internal/model"
	"presence/internal/store"
)

// StudentPatch is a partial student update. Nil fields are left alone.
type StudentPatch struct {
	FirstName     *string `json:"firstName"`
	LastName      *string `json:"lastName"`
	RollNumber    *string `json:"rollNumber"`
	Class         *string `json:"class"`
	Section       *string `json:"section"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	GuardianName  *string `json:"guardianName"`
	GuardianPhone *string `json:"guardianPhone"`
}

func (p StudentPatch) apply(st *model.Student) map[string]any {
	out := map[string]any{}
	set := func(key string, src *string, dst *string) {
		if src == nil {
			return
		}
		*dst = *src
		out[key] = *src
	}
	set("firstName", p.FirstName, &st.FirstName)
	set("lastName", p.LastName, &st.LastName)
	set("rollNumber", p.RollNumber, &st.RollNumber)
	set("class", p.Class, &st.Class)
	set("section", p.Section, &st.Section)
	set("email", p.Email, &st.Email)
	set("phone", p.Phone, &st.Phone)
	set("address", p.Address, &st.Address)
	set("guardianName", p.GuardianName, &st.GuardianName)
	set("guardianPhone", p.GuardianPhone, &st.GuardianPhone)
	return out
}

// CreateStudent registers a student. Roll numbers are not checked for
// uniqueness.
func (s *Service) CreateStudent(ctx context.Context, in model.Student) (model.Student, error) {
	now := s.now()
	in.ID = ""
	in.FullName = model.JoinName(in.FirstName, in.LastName)
	in.CreatedAt = now
	in.UpdatedAt = now
	if err := model.Validate(in); err != nil {
		return model.Student{}, validationError(err)
	}
	id, err := s.students.Create(ctx, in)
	if err != nil {
		return model.Student{}, storeError("create student", err)
	}
	in.ID = id
	return in, nil
}

// GetStudent loads one student.
func (s *Service) GetStudent(ctx context.Context, id string) (model.Student, error) {
	st, err := s.students.Get(ctx, id)
	if err != nil {
		return model.Student{}, storeError("get student "+id, err)
	}
	return st, nil
}

// ListStudents returns students newest first.
func (s *Service) ListStudents(ctx context.Context) ([]model.Student, error) {
	out, err := s.students.Find(ctx, store.Query{Newest: true})
	if err != nil {
		return nil, storeError("list students", err)
	}
	return out, nil
}

// UpdateStudent merges p into the student and recomputes fullName.
func (s *Service) UpdateStudent(ctx context.Context, id string, p StudentPatch) (model.Student, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, err
	}
	patch := p.apply(&st)
	st.FullName = model.JoinName(st.FirstName, st.LastName)
	st.UpdatedAt = s.now()
	if err := model.Validate(st); err != nil {
		return model.Student{}, validationError(err)
	}
	patch["fullName"] = st.FullName
	patch["updatedAt"] = st.UpdatedAt
	if err := s.students.Update(ctx, id, patch); err != nil {
		return model.Student{}, storeError("update student "+id, err)
	}
	return st, nil
}

// DeleteStudent removes a student. Attendance and roster entries that
// reference it are kept.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if err := s.students.Delete(ctx, id); err != nil {
		return storeError("delete student "+id, err)
	}
	return nil
}

// SetStudentPhoto records the URL of an uploaded photo.
func (s *Service) SetStudentPhoto(ctx context.Context, id, url string) (model.Student, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return model.Student{}, err
	}
	st.PhotoURL = url
	st.UpdatedAt = s.now()
	if err := model.Validate(st); err != nil {
		return model.Student{}, validationError(err)
	}
	err = s.students.Update(ctx, id, map[string]any{"photoURL": url, "updatedAt": st.UpdatedAt})
	if err != nil {
		return model.Student{}, storeError("update student "+id, err)
	}
	return st, nil
}
