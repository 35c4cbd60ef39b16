package notification

import "fmt"

// Notices emitted by account, asset and settings operations.

func ProfileUpdated() Notice {
	return Notice{Message: "Profile updated.", Level: LevelSuccess}
}

func UserUpdated(username string) Notice {
	return Notice{Message: fmt.Sprintf("User %s updated.", username), Level: LevelSuccess}
}

func UpdateFailed(err error) Notice {
	return Notice{Message: fmt.Sprintf("Failed to update user: %v", err), Level: LevelError}
}

func PfpUploaded() Notice {
	return Notice{Message: "Profile picture uploaded.", Level: LevelSuccess}
}

func PfpUploadFailed(err error) Notice {
	return Notice{Message: fmt.Sprintf("Failed to upload profile picture: %v", err), Level: LevelError}
}

func PfpRemoved() Notice {
	return Notice{Message: "Profile picture removed.", Level: LevelSuccess}
}

func PfpRemoveFailed(err error) Notice {
	return Notice{Message: fmt.Sprintf("Failed to remove profile picture: %v", err), Level: LevelError}
}

func SettingsSaved() Notice {
	return Notice{Message: "Authentication settings updated successfully.", Level: LevelSuccess}
}

func SettingsSaveFailed(err error) Notice {
	return Notice{Message: fmt.Sprintf("Failed to save settings: %v", err), Level: LevelError}
}
