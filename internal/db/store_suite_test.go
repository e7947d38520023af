package db

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// StoreSuite exercises the PatientStore and StudyStore contracts. Concrete
// suites set newStores.
type StoreSuite struct {
	suite.Suite
	newStores func() (PatientStore, StudyStore)
	patients  PatientStore
	studies   StudyStore
}

func (s *StoreSuite) SetupTest() {
	s.patients, s.studies = s.newStores()
}

func (s *StoreSuite) createPatient(externalID string) *Patient {
	p := &Patient{ExternalID: externalID, FirstName: "Jane", LastName: "Doe", Phone: "5551234567"}
	s.Require().NoError(s.patients.Create(context.Background(), p))
	return p
}

func (s *StoreSuite) TestPatientLifecycle() {
	ctx := context.Background()
	created := s.createPatient("P1")
	s.NotEqual(uuid.Nil, created.ID)

	byExternal, err := s.patients.FindByExternalID(ctx, "P1")
	s.Require().NoError(err)
	s.Equal(created.ID, byExternal.ID)
	s.Equal("Jane", byExternal.FirstName)

	byExternal.FirstName = "Janet"
	byExternal.PortalUserID = "user-1"
	s.Require().NoError(s.patients.Update(ctx, byExternal))

	byID, err := s.patients.FindByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("Janet", byID.FirstName)
	s.True(byID.HasPortalAccount())
}

func (s *StoreSuite) TestPatientNotFound() {
	ctx := context.Background()

	_, err := s.patients.FindByExternalID(ctx, "missing")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.patients.FindByID(ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)

	err = s.patients.Update(ctx, &Patient{ID: uuid.New(), ExternalID: "ghost"})
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestPatientExternalIDIsUnique() {
	s.createPatient("P1")
	err := s.patients.Create(context.Background(), &Patient{ExternalID: "P1"})
	s.ErrorIs(err, ErrAlreadyExists)
}

func (s *StoreSuite) TestConcurrentPatientCreate() {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.patients.Create(context.Background(), &Patient{ExternalID: "RACE"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, created)
}

func (s *StoreSuite) TestStudyLifecycle() {
	ctx := context.Background()
	patient := s.createPatient("P1")

	study := &Study{AccessionNumber: "ACC-1", PatientID: patient.ID, Description: "CT Chest", Status: StudyScheduled}
	s.Require().NoError(s.studies.Create(ctx, study))
	s.NotEqual(uuid.Nil, study.ID)

	found, err := s.studies.FindByAccessionNumber(ctx, "ACC-1")
	s.Require().NoError(err)
	s.Equal(StudyScheduled, found.Status)
	s.Equal(patient.ID, found.PatientID)

	found.Status = StudyCompleted
	found.Impression = "Normal."
	found.ReportConfidence = "sectioned"
	s.Require().NoError(s.studies.Update(ctx, found))

	updated, err := s.studies.FindByAccessionNumber(ctx, "ACC-1")
	s.Require().NoError(err)
	s.Equal(StudyCompleted, updated.Status)
	s.Equal("Normal.", updated.Impression)
}

func (s *StoreSuite) TestStudyAccessionIsUnique() {
	ctx := context.Background()
	patient := s.createPatient("P1")

	s.Require().NoError(s.studies.Create(ctx, &Study{AccessionNumber: "ACC-1", PatientID: patient.ID, Status: StudyScheduled}))
	err := s.studies.Create(ctx, &Study{AccessionNumber: "ACC-1", PatientID: patient.ID, Status: StudyScheduled})
	s.ErrorIs(err, ErrAlreadyExists)

	_, err = s.studies.FindByAccessionNumber(ctx, "ACC-404")
	s.ErrorIs(err, ErrNotFound)
}
