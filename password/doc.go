// Package password verifies stored password hashes for the login guard.
//
// [Argon2] produces and checks PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] checks bcrypt hashes, and [Auto] picks between the two by prefix so a
// user base can migrate one login at a time. [Check] turns a stored hash and a
// submitted password into the credential check that authcore.Engine.Login consumes.
package password
