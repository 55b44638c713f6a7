/*
Package aa models ERC-4337 (EntryPoint v0.6) user operations for a
SimpleAccount-style smart account.

It covers the pieces a relay has to produce itself before handing an
operation to a paymaster and a bundler:

  - the UserOperation struct and its hex JSON wire form
  - the canonical user operation hash that the owner signs
  - calldata for SimpleAccount.execute and SimpleAccountFactory.createAccount
  - calldata and decoding for the factory getAddress and EntryPoint getNonce views

# Operation flow

	owner key ─┐
	           ├─ factory.getAddress(owner, salt) → sender
	target ────┴─ account.execute(to, value, data) → callData
	    → paymaster sponsors (paymasterAndData, gas limits)
	        → owner signs Hash(entryPoint, chainID)
	            → bundler eth_sendUserOperation
*/
package aa
