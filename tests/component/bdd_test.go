//go:build component
// +build component

package component

import "github.com/rbroggi/communityevents/internal/core/model"

func (s *ComponentTestSuite) TestRegistrationIsConfirmed() {
	given, when, then := s.gherkin()

	given().
		anEventWithNotificationsOrganizedBySomeone().
		aGeneralUser()

	when().
		theUserRegisters(true)

	then().
		theRegistrationSucceeds().
		exactlyOneConfirmationWillEventuallyBeEnqueued()
}

func (s *ComponentTestSuite) TestCancellationNotifiesTheOrganizer() {
	given, when, then := s.gherkin()

	given().
		anEventWithNotificationsOrganizedBySomeone().
		aGeneralUser().
		theUserIsRegisteredWithoutMails()

	when().
		theUserCancels()

	then().
		onlyTheOrganizerWillEventuallyBeNotified()
}

func (s *ComponentTestSuite) TestRoleChangeUpdatesClaims() {
	given, when, then := s.gherkin()

	given().
		aGeneralUser()

	when().
		theRoleOfTheUserBecomes(model.RoleAdmin)

	then().
		theClaimsWillEventuallyCarryTheRole(model.RoleAdmin)
}

func (s *ComponentTestSuite) TestRenameDoesNotTouchClaims() {
	given, when, then := s.gherkin()

	given().
		aGeneralUser()

	when().
		theUsernameOfTheUserChanges()

	then().
		theClaimsAreNeverWritten()
}

func (s *ComponentTestSuite) TestReminderCoversTomorrow() {
	given, when, then := s.gherkin()

	given().
		twoEventsTomorrowEachWithOneOptedInParticipant()

	when().
		theReminderRuns()

	then().
		oneReminderPerEventWasEnqueued()
}
